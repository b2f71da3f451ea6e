package doctype

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/valuelists"
)

type keyFunc func(m *models.Metadata, c *models.Category) (string, error)

// definition is the table-driven implementation of Type.
type definition struct {
	name          string
	label         string
	firstRevision int
	reviewable    bool
	metadata      []Field
	revision      []Field
	key           keyFunc
	lists         *valuelists.Registry
}

func (d *definition) Name() string             { return d.name }
func (d *definition) Label() string            { return d.label }
func (d *definition) FirstRevisionNumber() int { return d.firstRevision }
func (d *definition) Reviewable() bool         { return d.reviewable }
func (d *definition) MetadataFields() []Field  { return d.metadata }
func (d *definition) RevisionFields() []Field  { return d.revision }

func (d *definition) GenerateKey(m *models.Metadata, c *models.Category) (string, error) {
	return d.key(m, c)
}

func (d *definition) DecodeMetadata(data map[string]any, m *models.Metadata) error {
	errs := validation.Errors{}
	for name, raw := range data {
		f, ok := findField(d.metadata, name)
		if !ok {
			errs[name] = ErrUnknownField
			continue
		}
		v, err := decodeValue(f.Kind, raw)
		if err != nil {
			errs[name] = err
			continue
		}
		setMetadataValue(m, name, v)
	}
	if err := errs.Filter(); err != nil {
		return err
	}

	m.DocumentType = d.name
	if m.SequentialNumber != "" {
		seq, err := NormalizeSequentialNumber(m.SequentialNumber)
		if err != nil {
			return validation.Errors{"sequential_number": err}
		}
		m.SequentialNumber = seq
	}

	for _, f := range d.metadata {
		rules := d.rules(f)
		if f.Name == "document_key" {
			rules = append(rules, validation.By(validateKeyRule))
		}
		errs[f.Name] = validation.Validate(MetadataValue(m, f.Name), rules...)
	}
	return errs.Filter()
}

func (d *definition) DecodeRevision(data map[string]any, r *models.Revision) error {
	errs := validation.Errors{}
	for name, raw := range data {
		f, ok := findField(d.revision, name)
		if !ok {
			errs[name] = ErrUnknownField
			continue
		}
		v, err := decodeValue(f.Kind, raw)
		if err != nil {
			errs[name] = err
			continue
		}
		setRevisionValue(r, name, v)
	}
	if err := errs.Filter(); err != nil {
		return err
	}

	for _, f := range d.revision {
		rules := d.rules(f)
		if f.Kind == KindStrings && f.List != "" {
			rules = []validation.Rule{validation.Each(d.rules(Field{List: f.List})...)}
		}
		errs[f.Name] = validation.Validate(RevisionValue(r, f.Name), rules...)
	}
	return errs.Filter()
}

// rules returns the validation rules of a field.
func (d *definition) rules(f Field) []validation.Rule {
	var rules []validation.Rule
	if f.Required {
		rules = append(rules, validation.Required)
	}
	if f.List != "" && d.lists != nil {
		if l, ok := d.lists.Get(f.List); ok {
			allowed := make([]any, 0, len(l.Entries))
			for _, v := range l.Values() {
				allowed = append(allowed, v)
			}
			rules = append(rules, validation.In(allowed...).Error("must be a value of the "+f.List+" list"))
		}
	}
	return rules
}

func validateKeyRule(value any) error {
	key, _ := value.(string)
	if key == "" {
		return nil
	}
	return ValidateKey(key)
}

func findField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
