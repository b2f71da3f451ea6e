// Package events carries workflow events from the code that commits a state
// change to the handlers that react to it. Handlers run synchronously, in
// registration order, after the owning transaction has committed. Events
// are also recorded in a transactional outbox and relayed to the event
// broker.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/phase-edms/phase/pkg/models"
)

// Event names.
const (
	DocumentCreated    = "document_created"
	DocumentRevised    = "document_revised"
	RevisionEdited     = "revision_edited"
	TransmittalCreated = "transmittal_created"
	ReviewStarted      = "review_started"
	ReviewEnded        = "review_ended"
)

// Senders that are not document type tags.
const (
	SenderOutgoingTransmittal = "outgoing_transmittal"
	SenderIncomingTransmittal = "incoming_transmittal"
)

// Event is a workflow event. Record references are set according to the
// event: document events carry the document, metadata and revision,
// transmittal events carry the transmittal.
type Event struct {
	ID     uuid.UUID
	Name   string
	Sender string
	Time   time.Time

	Document    *models.Document
	Metadata    *models.Metadata
	Revision    *models.Revision
	Transmittal *models.Transmittal

	// Data holds event specific values.
	Data map[string]any
}

// New returns an event with a fresh identifier.
func New(name, sender string, now time.Time) Event {
	return Event{
		ID:     uuid.New(),
		Name:   name,
		Sender: sender,
		Time:   now,
	}
}

// Payload returns the broker representation of the event.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"event_id":    e.ID.String(),
		"event":       e.Name,
		"sender":      e.Sender,
		"occurred_at": e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.Document != nil {
		p["document_id"] = e.Document.ID
		p["document_key"] = e.Document.DocumentKey
		p["document_type"] = e.Document.DocumentType
		p["category_id"] = e.Document.CategoryID
	}
	if e.Metadata != nil {
		p["metadata_id"] = e.Metadata.ID
		p["title"] = e.Metadata.Title
	}
	if e.Revision != nil {
		p["revision_id"] = e.Revision.ID
		p["revision"] = e.Revision.Revision
	}
	if e.Transmittal != nil {
		p["transmittal_id"] = e.Transmittal.ID
		p["transmittal_key"] = e.Transmittal.TransmittalKey
		p["transmittal_status"] = string(e.Transmittal.Status)
	}
	if len(e.Data) > 0 {
		p["data"] = e.Data
	}
	return p
}

// PartitionKey keeps the events of one document (or transmittal) ordered on
// the broker.
func (e Event) PartitionKey() string {
	switch {
	case e.Document != nil:
		return e.Document.DocumentKey
	case e.Transmittal != nil:
		return e.Transmittal.TransmittalKey
	}
	return e.ID.String()
}
