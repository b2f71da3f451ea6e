package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/notifications"
)

// DefaultBackends are the backends notifications are routed to when a
// request names none.
var DefaultBackends = []string{"mail", "audit"}

// NotificationRequest contains all data needed to create and send a notification
type NotificationRequest struct {
	Type            notifications.NotificationType
	Recipients      []notifications.Recipient
	TemplateContext map[string]any
	Backends        []string
	Priority        int
	DocumentKey     string
	TransmittalKey  string
}

// Provider resolves notification templates and hands the messages to a
// sender: the notification publisher, or the backend dispatcher when no
// broker is configured.
type Provider struct {
	resolver *TemplateResolver
	sender   notifications.Sender
	clock    clock.Clock
	logger   hclog.Logger
}

// NewProvider creates a new notification provider
func NewProvider(sender notifications.Sender, c clock.Clock, logger hclog.Logger) (*Provider, error) {
	if sender == nil {
		return nil, fmt.Errorf("notification sender is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	resolver, err := NewTemplateResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template resolver: %w", err)
	}

	return &Provider{
		resolver: resolver,
		sender:   sender,
		clock:    clock.Or(c),
		logger:   logger.Named("notifications"),
	}, nil
}

// Notify resolves the templates of req and sends the notification.
func (p *Provider) Notify(ctx context.Context, req NotificationRequest) error {
	content, err := p.resolver.Resolve(req.Type, req.TemplateContext)
	if err != nil {
		return fmt.Errorf("failed to resolve templates: %w", err)
	}

	backends := req.Backends
	if len(backends) == 0 {
		backends = DefaultBackends
	}

	msg := &notifications.NotificationMessage{
		ID:              uuid.New().String(),
		Type:            req.Type,
		Timestamp:       p.clock.Now(),
		Priority:        req.Priority,
		Recipients:      req.Recipients,
		Subject:         content.Subject,
		Body:            content.Body,
		BodyHTML:        content.BodyHTML,
		TemplateContext: req.TemplateContext,
		Backends:        backends,
		DocumentKey:     req.DocumentKey,
		TransmittalKey:  req.TransmittalKey,
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", req.Type, err)
	}

	p.logger.Debug("notification sent",
		"id", msg.ID,
		"type", msg.Type,
		"recipients", len(msg.Recipients),
	)
	return nil
}
