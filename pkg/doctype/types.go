package doctype

import (
	"fmt"

	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/valuelists"
)

// Type tags of the built-in document types.
const (
	ContractorDeliverable = "contractor_deliverable"
	Correspondence        = "correspondence"
	MinutesOfMeeting      = "minutes_of_meeting"
	Transmittals          = "transmittals"
	DemoMetadata          = "demo_metadata"
)

// DefaultRegistry returns a registry with the built-in document types. Choice
// fields are validated against lists; a nil lists registry uses the embedded
// defaults.
func DefaultRegistry(lists *valuelists.Registry) *Registry {
	if lists == nil {
		lists = valuelists.Default()
	}

	r := NewRegistry()
	for _, d := range builtinTypes() {
		d.lists = lists
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinTypes() []*definition {
	return []*definition{
		{
			name:          ContractorDeliverable,
			label:         "Contractor deliverable",
			firstRevision: 0,
			reviewable:    true,
			metadata: []Field{
				{Name: "document_key", Kind: KindString},
				{Name: "title", Kind: KindText, Required: true},
				{Name: "contract_number", Kind: KindString},
				{Name: "originator", Kind: KindString, List: valuelists.Originators},
				{Name: "unit", Kind: KindString, List: valuelists.Units},
				{Name: "discipline", Kind: KindString, Required: true, List: valuelists.Disciplines},
				{Name: "document_type", Kind: KindString, Required: true, List: valuelists.DocumentTypes},
				{Name: "sequential_number", Kind: KindString, Required: true},
				{Name: "system", Kind: KindString},
				{Name: "wbs", Kind: KindString},
				{Name: "weight", Kind: KindInt},
			},
			revision: reviewRevisionFields(
				Field{Name: "klass", Kind: KindInt},
				Field{Name: "status", Kind: KindString, List: valuelists.RevisionStatuses},
				Field{Name: "final_revision", Kind: KindBool},
				Field{Name: "received_date", Kind: KindDate},
				Field{Name: "native_file", Kind: KindString},
				Field{Name: "pdf_file", Kind: KindString},
			),
			key: contractorDeliverableKey,
		},
		{
			name:          Correspondence,
			label:         "Correspondence",
			firstRevision: 1,
			metadata: exchangeMetadataFields(
				Field{Name: "subject", Kind: KindText, Required: true},
				Field{Name: "correspondence_date", Kind: KindDate, Required: true},
				Field{Name: "received_sent_date", Kind: KindDate},
				Field{Name: "author", Kind: KindString},
				Field{Name: "addresses", Kind: KindText},
				Field{Name: "response_required", Kind: KindBool},
				Field{Name: "due_date", Kind: KindDate},
				Field{Name: "external_reference", Kind: KindText},
			),
			revision: []Field{
				{Name: "status", Kind: KindString},
				{Name: "revision_date", Kind: KindDate},
				{Name: "native_file", Kind: KindString},
				{Name: "pdf_file", Kind: KindString},
				{Name: "leader", Kind: KindString},
			},
			key: exchangeKey,
		},
		{
			name:          MinutesOfMeeting,
			label:         "Minutes of meeting",
			firstRevision: 1,
			metadata: exchangeMetadataFields(
				Field{Name: "subject", Kind: KindText, Required: true},
				Field{Name: "meeting_date", Kind: KindDate, Required: true},
				Field{Name: "received_sent_date", Kind: KindDate},
				Field{Name: "prepared_by", Kind: KindString},
				Field{Name: "signed", Kind: KindBool},
				Field{Name: "response_reference", Kind: KindText},
			),
			revision: plainRevisionFields(),
			key:      exchangeKey,
		},
		{
			name:          Transmittals,
			label:         "Transmittals",
			firstRevision: 1,
			metadata: exchangeMetadataFields(
				Field{Name: "transmittal_date", Kind: KindDate, Required: true},
				Field{Name: "ack_of_receipt_date", Kind: KindDate},
				Field{Name: "frm", Kind: KindString},
				Field{Name: "to", Kind: KindString},
			),
			revision: plainRevisionFields(),
			key:      exchangeKey,
		},
		{
			name:          DemoMetadata,
			label:         "Demo metadata",
			firstRevision: 1,
			reviewable:    true,
			metadata: []Field{
				{Name: "document_key", Kind: KindString},
				{Name: "title", Kind: KindText, Required: true},
			},
			revision: reviewRevisionFields(
				Field{Name: "status", Kind: KindString, List: valuelists.RevisionStatuses},
				Field{Name: "native_file", Kind: KindString},
				Field{Name: "pdf_file", Kind: KindString},
			),
			key: demoKey,
		},
	}
}

// exchangeMetadataFields are the fields of documents exchanged between two
// parties, keyed by contract, originator and recipient.
func exchangeMetadataFields(extra ...Field) []Field {
	fields := []Field{
		{Name: "document_key", Kind: KindString},
		{Name: "contract_number", Kind: KindString, Required: true},
		{Name: "originator", Kind: KindString, Required: true, List: valuelists.Originators},
		{Name: "recipient", Kind: KindString, Required: true, List: valuelists.Originators},
		{Name: "document_type", Kind: KindString, Required: true, List: valuelists.DocumentTypes},
		{Name: "sequential_number", Kind: KindString, Required: true},
	}
	return append(fields, extra...)
}

func plainRevisionFields() []Field {
	return []Field{
		{Name: "status", Kind: KindString},
		{Name: "revision_date", Kind: KindDate},
		{Name: "native_file", Kind: KindString},
		{Name: "pdf_file", Kind: KindString},
	}
}

func reviewRevisionFields(fields ...Field) []Field {
	return append(fields,
		Field{Name: "reviewers", Kind: KindStrings},
		Field{Name: "leader", Kind: KindString},
		Field{Name: "approver", Kind: KindString},
	)
}

// contractorDeliverableKey builds {prefix}-{discipline}-{document_type}-{seq}.
// The prefix is {contract}-{originator}-{unit} when all three are set and the
// category code otherwise.
func contractorDeliverableKey(m *models.Metadata, c *models.Category) (string, error) {
	seq, err := NormalizeSequentialNumber(m.SequentialNumber)
	if err != nil {
		return "", fmt.Errorf("%w: sequential_number", ErrIncompleteKey)
	}

	prefix := []keyPart{
		{"contract_number", m.ContractNumber},
		{"originator", m.Originator},
		{"unit", m.Unit},
	}
	if m.ContractNumber == "" || m.Originator == "" || m.Unit == "" {
		if c == nil || c.Code == "" {
			return "", fmt.Errorf("%w: category code", ErrIncompleteKey)
		}
		prefix = []keyPart{{"category", c.Code}}
	}

	return joinKey(append(prefix,
		keyPart{"discipline", m.Discipline},
		keyPart{"document_type", m.DocType},
		keyPart{"sequential_number", seq},
	)...)
}

// exchangeKey builds {contract}-{originator}-{recipient}-{document_type}-{seq}.
func exchangeKey(m *models.Metadata, _ *models.Category) (string, error) {
	seq, err := NormalizeSequentialNumber(m.SequentialNumber)
	if err != nil {
		return "", fmt.Errorf("%w: sequential_number", ErrIncompleteKey)
	}
	return joinKey(
		keyPart{"contract_number", m.ContractNumber},
		keyPart{"originator", m.Originator},
		keyPart{"recipient", m.Recipient},
		keyPart{"document_type", m.DocType},
		keyPart{"sequential_number", seq},
	)
}

func demoKey(m *models.Metadata, _ *models.Category) (string, error) {
	return slugKey(m.Title)
}
