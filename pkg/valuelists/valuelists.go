// Package valuelists holds the configurable choice lists (disciplines,
// document types, originators, ...) that constrain document form fields.
package valuelists

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Well-known list names.
const (
	Disciplines      = "disciplines"
	DocumentTypes    = "document_types"
	Originators      = "originators"
	Units            = "units"
	RevisionStatuses = "revision_statuses"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Entry is one allowed value of a list.
type Entry struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// List is a named set of entries.
type List struct {
	Name    string  `yaml:"name"`
	Entries []Entry `yaml:"entries"`
}

type file struct {
	Lists []List `yaml:"lists"`
}

// Registry holds value lists by name. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	lists map[string]List
}

// New returns an empty registry. Fields constrained by a list that is not
// registered accept any value.
func New() *Registry {
	return &Registry{lists: make(map[string]List)}
}

// Default returns a registry loaded with the embedded default lists.
func Default() *Registry {
	r := New()
	if err := r.LoadYAML(bytes.NewReader(defaultsYAML)); err != nil {
		panic(fmt.Sprintf("invalid embedded value lists: %v", err))
	}
	return r
}

// LoadYAML adds or replaces the lists defined in r.
func (r *Registry) LoadYAML(in io.Reader) error {
	var f file
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("error decoding value lists: %w", err)
	}

	for i, l := range f.Lists {
		if l.Name == "" {
			return fmt.Errorf("value list %d has no name", i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range f.Lists {
		r.lists[l.Name] = l
	}
	return nil
}

// Set registers a list.
func (r *Registry) Set(l List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[l.Name] = l
}

// Get returns a list by name.
func (r *Registry) Get(name string) (List, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lists[name]
	return l, ok
}

// Values returns the allowed values of a list.
func (l List) Values() []string {
	values := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		values = append(values, e.Value)
	}
	return values
}

// Contains reports whether value is allowed by the named list. Values are
// always allowed when the list is not registered.
func (r *Registry) Contains(name, value string) bool {
	l, ok := r.Get(name)
	if !ok {
		return true
	}
	return slices.Contains(l.Values(), value)
}

// Label returns the display label of a value, or the value itself.
func (r *Registry) Label(name, value string) string {
	l, ok := r.Get(name)
	if !ok {
		return value
	}
	for _, e := range l.Entries {
		if e.Value == value {
			return e.Label
		}
	}
	return value
}
