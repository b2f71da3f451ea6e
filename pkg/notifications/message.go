package notifications

import (
	"context"
	"time"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeEmail              NotificationType = "email"
	NotificationTypeReviewReminder     NotificationType = "review_reminder"
	NotificationTypeReviewStarted      NotificationType = "review_started"
	NotificationTypeTransmittalCreated NotificationType = "transmittal_created"
)

// NotificationMessage is the envelope for all notifications
type NotificationMessage struct {
	// Message metadata
	ID        string           `json:"id"`        // Unique message ID (UUID)
	Type      NotificationType `json:"type"`      // Notification type
	Timestamp time.Time        `json:"timestamp"` // When published
	Priority  int              `json:"priority"`  // 0=normal, 1=high, 2=urgent

	// Context
	DocumentKey    string `json:"document_key,omitempty"`    // Related document
	TransmittalKey string `json:"transmittal_key,omitempty"` // Related transmittal

	// Notification targets
	Recipients []Recipient `json:"recipients"`

	// Template variables, kept for audit/debugging
	TemplateContext map[string]any `json:"template_context,omitempty"`

	// Resolved content (populated before publishing)
	Subject  string `json:"subject"`
	Body     string `json:"body"`      // markdown
	BodyHTML string `json:"body_html"` // HTML

	// Backend routing (which backends should process this)
	Backends []string `json:"backends"` // ["mail", "audit"]

	// Retry tracking (set by consumers)
	RetryCount     int       `json:"retry_count,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastRetryAt    time.Time `json:"last_retry_at,omitempty"`
	NextRetryAt    time.Time `json:"next_retry_at,omitempty"`
	FailedBackends []string  `json:"failed_backends,omitempty"`
}

// Recipient defines a notification recipient
type Recipient struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Sender delivers a resolved notification, either by publishing it to the
// notification topic or by handing it to the backends directly.
type Sender interface {
	Send(ctx context.Context, msg *NotificationMessage) error
}
