// Package doctype describes the document types managed by the system. Each
// type declares its metadata and revision fields, its first revision number,
// whether its revisions can be reviewed, and how document keys are built.
//
// Types are registered in a static Registry at process start.
package doctype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/phase-edms/phase/pkg/models"
)

var (
	// ErrUnknownType is returned when a document type tag is not registered.
	ErrUnknownType = errors.New("unknown document type")

	// ErrUnknownField is returned when form data names a field the type does
	// not declare.
	ErrUnknownField = errors.New("unknown field")
)

// Kind is the value kind of a form field.
type Kind int

const (
	KindString Kind = iota
	KindText
	KindDate
	KindBool
	KindInt
	KindFloat
	KindStrings
)

// Field declares one form field of a document type.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// List names the value list constraining the field, if any.
	List string
}

// Label returns a human readable label for the field.
func (f Field) Label() string {
	s := strcase.ToDelimited(f.Name, ' ')
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Type is the capability set of a document type.
type Type interface {
	// Name is the type tag stored on documents, e.g. "contractor_deliverable".
	Name() string
	Label() string

	// FirstRevisionNumber is the number assigned to the revision created
	// together with a new document.
	FirstRevisionNumber() int

	// Reviewable reports whether revisions of this type can be reviewed.
	Reviewable() bool

	MetadataFields() []Field
	RevisionFields() []Field

	// DecodeMetadata applies form data to m and validates the result.
	// Validation failures are returned as validation.Errors.
	DecodeMetadata(data map[string]any, m *models.Metadata) error

	// DecodeRevision applies form data to r and validates the result.
	DecodeRevision(data map[string]any, r *models.Revision) error

	// GenerateKey builds the document key from the metadata fields.
	GenerateKey(m *models.Metadata, c *models.Category) (string, error)
}

// RevisionSender returns the type tag of revisions of t.
func RevisionSender(t Type) string {
	return t.Name() + "_revision"
}

// Registry holds the registered document types.
type Registry struct {
	types map[string]Type
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds a type. Names must be unique.
func (r *Registry) Register(t Type) error {
	if _, ok := r.types[t.Name()]; ok {
		return fmt.Errorf("document type %q already registered", t.Name())
	}
	r.types[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns the type registered under name.
func (r *Registry) Get(name string) (Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// All returns every registered type in registration order.
func (r *Registry) All() []Type {
	all := make([]Type, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.types[name])
	}
	return all
}

// Reviewable returns the registered types whose revisions can be reviewed.
func (r *Registry) Reviewable() []Type {
	var types []Type
	for _, t := range r.All() {
		if t.Reviewable() {
			types = append(types, t)
		}
	}
	return types
}
