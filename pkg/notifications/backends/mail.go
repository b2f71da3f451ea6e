package backends

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"

	"github.com/phase-edms/phase/pkg/notifications"
)

// MailBackend sends notification emails via SMTP
type MailBackend struct {
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromAddress  string
	fromName     string
	useTLS       bool

	// sendMail delivers one message; replaced in tests.
	sendMail func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// MailBackendConfig configures the mail backend
type MailBackendConfig struct {
	SMTPHost     string // SMTP server hostname
	SMTPPort     string // SMTP server port (typically 587 for TLS, 25 for plaintext)
	SMTPUsername string // SMTP username (optional for auth)
	SMTPPassword string // SMTP password (optional for auth)
	FromAddress  string // From email address
	FromName     string // From display name
	UseTLS       bool   // Use STARTTLS (recommended for port 587)
}

// NewMailBackend creates a new mail backend
func NewMailBackend(cfg MailBackendConfig) *MailBackend {
	b := &MailBackend{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUsername: cfg.SMTPUsername,
		smtpPassword: cfg.SMTPPassword,
		fromAddress:  cfg.FromAddress,
		fromName:     cfg.FromName,
		useTLS:       cfg.UseTLS,
	}
	b.sendMail = smtp.SendMail
	if b.useTLS {
		b.sendMail = b.sendMailTLS
	}
	return b
}

// Name returns the backend identifier
func (b *MailBackend) Name() string {
	return "mail"
}

// SupportsBackend checks if this backend should process the message
func (b *MailBackend) SupportsBackend(backend string) bool {
	return backend == "mail" || backend == "email"
}

// Handle sends one email per recipient
func (b *MailBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	var recipients []string
	for _, r := range msg.Recipients {
		if r.Email != "" {
			recipients = append(recipients, r.Email)
		}
	}

	if len(recipients) == 0 {
		return NewBackendError(b.Name(), "render", false, fmt.Errorf("no email recipients found in notification"))
	}

	subject, body, err := b.renderEmail(msg)
	if err != nil {
		return NewBackendError(b.Name(), "render", false, fmt.Errorf("failed to render email: %w", err))
	}

	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return NewBackendError(b.Name(), "send", true, err)
		}
		if err := b.sendEmail(to, subject, body); err != nil {
			return NewBackendError(b.Name(), "send", true, fmt.Errorf("failed to send email to %s: %w", to, err))
		}
	}

	return nil
}

// renderEmail returns the subject and HTML body. Resolved content is used as
// is; messages published without it get a generic rendering.
func (b *MailBackend) renderEmail(msg *notifications.NotificationMessage) (string, string, error) {
	subject := msg.Subject
	if subject == "" {
		subject = b.buildSubject(msg)
	}

	if msg.BodyHTML != "" {
		return subject, msg.BodyHTML, nil
	}
	body, err := b.buildBody(subject, msg)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// buildSubject creates the subject of messages without resolved content
func (b *MailBackend) buildSubject(msg *notifications.NotificationMessage) string {
	switch msg.Type {
	case notifications.NotificationTypeReviewReminder:
		return "Phase - Pending reviews"
	case notifications.NotificationTypeReviewStarted:
		if msg.DocumentKey != "" {
			return fmt.Sprintf("Phase - Review started for %s", msg.DocumentKey)
		}
		return "Phase - Review started"
	case notifications.NotificationTypeTransmittalCreated:
		if msg.TransmittalKey != "" {
			return fmt.Sprintf("Phase - Transmittal %s", msg.TransmittalKey)
		}
		return "Phase - New transmittal"
	default:
		return "Phase notification"
	}
}

var fallbackBody = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body>
    <h1>{{.Subject}}</h1>
    {{if .Body}}<pre>{{.Body}}</pre>{{end}}
    <dl>
    {{range .Context}}
        <dt>{{.Key}}</dt><dd>{{.Value}}</dd>
    {{end}}
    </dl>
    <p>This is an automated notification from Phase.</p>
</body>
</html>`))

type contextEntry struct {
	Key   string
	Value any
}

// buildBody creates an HTML body listing the template context
func (b *MailBackend) buildBody(subject string, msg *notifications.NotificationMessage) (string, error) {
	keys := make([]string, 0, len(msg.TemplateContext))
	for k := range msg.TemplateContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]contextEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, contextEntry{Key: k, Value: msg.TemplateContext[k]})
	}

	var buf bytes.Buffer
	err := fallbackBody.Execute(&buf, struct {
		Subject string
		Body    string
		Context []contextEntry
	}{
		Subject: subject,
		Body:    msg.Body,
		Context: entries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return buf.String(), nil
}

// sendEmail sends an email via SMTP
func (b *MailBackend) sendEmail(to, subject, htmlBody string) error {
	from := b.fromAddress
	if b.fromName != "" {
		from = fmt.Sprintf("%s <%s>", b.fromName, b.fromAddress)
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		from, to, subject, htmlBody,
	))

	addr := fmt.Sprintf("%s:%s", b.smtpHost, b.smtpPort)

	var auth smtp.Auth
	if b.smtpUsername != "" && b.smtpPassword != "" {
		auth = smtp.PlainAuth("", b.smtpUsername, b.smtpPassword, b.smtpHost)
	}

	return b.sendMail(addr, auth, b.fromAddress, []string{to}, msg)
}

// sendMailTLS sends email with STARTTLS support
func (b *MailBackend) sendMailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: b.smtpHost}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, addr := range to {
		if err = client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
