package doctype

import (
	"time"

	"github.com/phase-edms/phase/pkg/models"
)

// Metadata fields backed by columns. Every other field is kept in
// Metadata.Fields.
func metadataColumn(m *models.Metadata, name string) *string {
	switch name {
	case "document_key":
		return &m.DocumentKey
	case "title", "subject":
		return &m.Title
	case "contract_number":
		return &m.ContractNumber
	case "originator":
		return &m.Originator
	case "recipient":
		return &m.Recipient
	case "unit":
		return &m.Unit
	case "discipline":
		return &m.Discipline
	case "document_type":
		return &m.DocType
	case "sequential_number":
		return &m.SequentialNumber
	}
	return nil
}

func setMetadataValue(m *models.Metadata, name string, v any) {
	if col := metadataColumn(m, name); col != nil {
		*col, _ = v.(string)
		return
	}
	if stored, ok := storedValue(v); ok {
		m.SetField(name, stored)
	} else {
		delete(m.Fields, name)
	}
}

// MetadataValue returns the value of a metadata field.
func MetadataValue(m *models.Metadata, name string) any {
	if col := metadataColumn(m, name); col != nil {
		return *col
	}
	v, _ := m.Field(name)
	return v
}

func setRevisionValue(r *models.Revision, name string, v any) {
	switch name {
	case "status":
		r.Status, _ = v.(string)
	case "native_file":
		r.NativeFile, _ = v.(string)
	case "pdf_file":
		r.PDFFile, _ = v.(string)
	case "leader":
		r.Leader, _ = v.(string)
	case "approver":
		r.Approver, _ = v.(string)
	case "reviewers":
		r.Reviewers, _ = v.([]string)
	case "final_revision":
		r.FinalRevision, _ = v.(bool)
	case "revision_date":
		r.RevisionDate, _ = v.(*time.Time)
	case "received_date":
		r.ReceivedDate, _ = v.(*time.Time)
	default:
		if stored, ok := storedValue(v); ok {
			r.SetField(name, stored)
		} else {
			delete(r.Fields, name)
		}
	}
}

// RevisionValue returns the value of a revision field.
func RevisionValue(r *models.Revision, name string) any {
	switch name {
	case "status":
		return r.Status
	case "native_file":
		return r.NativeFile
	case "pdf_file":
		return r.PDFFile
	case "leader":
		return r.Leader
	case "approver":
		return r.Approver
	case "reviewers":
		return r.Reviewers
	case "final_revision":
		return r.FinalRevision
	case "revision_date":
		return r.RevisionDate
	case "received_date":
		return r.ReceivedDate
	}
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}
