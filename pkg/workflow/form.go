package workflow

import (
	"errors"
	"maps"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/models"
)

// Form binds submitted field values to a metadata or revision record.
// Validate decodes the values into a copy of Instance and, when they are
// valid, applies the copy to Instance.
type Form[T any] struct {
	Instance *T
	Data     map[string]any

	docType doctype.Type
	decode  func(data map[string]any, into *T) error
	clone   func(*T) *T

	validated bool
	err       error
}

// MetadataForm is a form over a document's metadata.
type MetadataForm = Form[models.Metadata]

// RevisionForm is a form over a revision.
type RevisionForm = Form[models.Revision]

// NewMetadataForm returns a form applying data to instance. A nil instance
// starts a new document.
func NewMetadataForm(t doctype.Type, instance *models.Metadata, data map[string]any) *MetadataForm {
	if instance == nil {
		instance = &models.Metadata{}
	}
	return &MetadataForm{
		Instance: instance,
		Data:     data,
		docType:  t,
		decode:   t.DecodeMetadata,
		clone: func(m *models.Metadata) *models.Metadata {
			c := *m
			c.Fields = maps.Clone(m.Fields)
			return &c
		},
	}
}

// NewRevisionForm returns a form applying data to instance. A nil instance
// starts a new revision.
func NewRevisionForm(t doctype.Type, instance *models.Revision, data map[string]any) *RevisionForm {
	if instance == nil {
		instance = &models.Revision{}
	}
	return &RevisionForm{
		Instance: instance,
		Data:     data,
		docType:  t,
		decode:   t.DecodeRevision,
		clone: func(r *models.Revision) *models.Revision {
			c := *r
			c.Fields = maps.Clone(r.Fields)
			c.Reviewers = slices.Clone(r.Reviewers)
			return &c
		},
	}
}

// Type returns the document type of the form.
func (f *Form[T]) Type() doctype.Type {
	return f.docType
}

// Validate decodes and validates the form data once.
func (f *Form[T]) Validate() error {
	if f.validated {
		return f.err
	}
	f.validated = true

	c := f.clone(f.Instance)
	if err := f.decode(f.Data, c); err != nil {
		f.err = err
		return err
	}
	*f.Instance = *c
	return nil
}

// IsValid reports whether the form data is valid.
func (f *Form[T]) IsValid() bool {
	return f.Validate() == nil
}

// Errors returns the validation errors by field name.
func (f *Form[T]) Errors() validation.Errors {
	err := f.Validate()
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return verrs
	}
	return validation.Errors{"__all__": err}
}
