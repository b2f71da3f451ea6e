package backends

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/phase-edms/phase/pkg/notifications"
)

// AuditBackend logs all notifications for compliance and debugging
type AuditBackend struct {
	logger hclog.Logger
}

// NewAuditBackend creates a new audit backend
func NewAuditBackend(logger hclog.Logger) *AuditBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuditBackend{
		logger: logger.Named("audit"),
	}
}

// Name returns the backend identifier
func (b *AuditBackend) Name() string {
	return "audit"
}

// SupportsBackend checks if this backend should process the message
func (b *AuditBackend) SupportsBackend(backend string) bool {
	return backend == "audit"
}

// Handle records the notification in the log
func (b *AuditBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	args := []any{
		"id", msg.ID,
		"type", msg.Type,
		"priority", msg.Priority,
		"timestamp", msg.Timestamp.Format(time.RFC3339),
		"recipients", formatRecipients(msg.Recipients),
		"subject", msg.Subject,
	}
	if msg.DocumentKey != "" {
		args = append(args, "document_key", msg.DocumentKey)
	}
	if msg.TransmittalKey != "" {
		args = append(args, "transmittal_key", msg.TransmittalKey)
	}
	b.logger.Info("notification", args...)

	if msg.Body != "" {
		b.logger.Debug("notification body", "id", msg.ID, "body", msg.Body)
	}
	return nil
}

func formatRecipients(recipients []notifications.Recipient) []string {
	var parts []string
	for _, r := range recipients {
		switch {
		case r.Name != "" && r.Email != "":
			parts = append(parts, r.Name+" <"+r.Email+">")
		case r.Email != "":
			parts = append(parts, r.Email)
		}
	}
	return parts
}
