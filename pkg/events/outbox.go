package events

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/models"
)

// RecordOutbox writes evt to the outbox using tx, so the entry commits or
// rolls back together with the change that produced it.
func RecordOutbox(tx *gorm.DB, evt Event) error {
	entry := &models.EventOutbox{
		EventName: evt.Name,
		Sender:    evt.Sender,
		Payload:   evt.Payload(),
	}
	if evt.Document != nil {
		entry.DocumentID = &evt.Document.ID
	}
	if evt.Revision != nil {
		entry.RevisionID = &evt.Revision.ID
	}
	if evt.Transmittal != nil {
		entry.TransmittalID = &evt.Transmittal.ID
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("error recording %s event: %w", evt.Name, err)
	}
	return nil
}

// Recorder collects events during a transaction. Events are written to the
// outbox immediately and released for dispatch once the transaction has
// committed.
type Recorder struct {
	tx     *gorm.DB
	events []Event
}

// NewRecorder returns a recorder writing to tx.
func NewRecorder(tx *gorm.DB) *Recorder {
	return &Recorder{tx: tx}
}

// Record writes evt to the outbox and queues it for dispatch.
func (r *Recorder) Record(evt Event) error {
	if err := RecordOutbox(r.tx, evt); err != nil {
		return err
	}
	r.events = append(r.events, evt)
	return nil
}

// Events returns the queued events.
func (r *Recorder) Events() []Event {
	return r.events
}
