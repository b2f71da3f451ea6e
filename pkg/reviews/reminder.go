package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	notify "github.com/phase-edms/phase/internal/notifications"
	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/notifications"
)

// Notifier resolves and sends notifications.
type Notifier interface {
	Notify(ctx context.Context, req notify.NotificationRequest) error
}

// ReminderConfig configures a Reminder.
type ReminderConfig struct {
	DB       *gorm.DB
	Notifier Notifier
	Clock    clock.Clock
	Logger   hclog.Logger

	// RemindWithinDays restricts reminders to reviews due within that many
	// days. Zero reminds every open review.
	RemindWithinDays int
}

// Reminder is the send-review-reminders job.
type Reminder struct {
	cfg    ReminderConfig
	clock  clock.Clock
	logger hclog.Logger
}

// NewReminder returns a reminder job.
func NewReminder(cfg ReminderConfig) (*Reminder, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Reminder{
		cfg:    cfg,
		clock:  clock.Or(cfg.Clock),
		logger: cfg.Logger.Named("review-reminder"),
	}, nil
}

// Run sends one reminder per revision under review that has open reviews,
// addressed to the participants of the active step. It returns the number
// of reminders sent; send failures are collected and do not stop the run.
func (r *Reminder) Run(ctx context.Context) (int, error) {
	db := r.cfg.DB.WithContext(ctx)
	revisions, err := models.GetRevisionsUnderReview(db)
	if err != nil {
		return 0, fmt.Errorf("error listing revisions under review: %w", err)
	}

	now := r.clock.Now()
	today := clock.Date(now)
	var result *multierror.Error
	sent := 0

	for i := range revisions {
		rev := &revisions[i]
		if r.cfg.RemindWithinDays > 0 && rev.ReviewDueDate != nil &&
			rev.ReviewDueDate.After(today.AddDate(0, 0, r.cfg.RemindWithinDays)) {
			continue
		}

		reviews, err := models.GetReviewsByRevision(db, rev.ID)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("error listing reviews of revision %d: %w", rev.ID, err))
			continue
		}
		recipients := activeParticipants(reviews)
		if len(recipients) == 0 {
			continue
		}

		req := reminderRequest(rev, recipients, IsOverdue(rev, now))
		if err := r.cfg.Notifier.Notify(ctx, req); err != nil {
			result = multierror.Append(result, fmt.Errorf("error reminding review of %s: %w", req.DocumentKey, err))
			continue
		}
		sent++
	}

	r.logger.Info("review reminders sent", "sent", sent, "under_review", len(revisions))
	return sent, result.ErrorOrNil()
}

// activeParticipants returns the participants of the active step.
func activeParticipants(reviews []models.Review) []notifications.Recipient {
	var recipients []notifications.Recipient
	seen := map[string]bool{}
	for _, rv := range reviews {
		if rv.Status != models.ReviewStatusProgress || seen[rv.Reviewer] {
			continue
		}
		seen[rv.Reviewer] = true
		recipients = append(recipients, notifications.Recipient{Email: rv.Reviewer})
	}
	return recipients
}

func reminderRequest(rev *models.Revision, recipients []notifications.Recipient, overdue bool) notify.NotificationRequest {
	var key, title string
	if rev.Document != nil {
		key, title = rev.Document.DocumentKey, rev.Document.Title
	}
	names := make([]string, len(recipients))
	for i, rcpt := range recipients {
		names[i] = rcpt.Email
	}

	return notify.NotificationRequest{
		Type:        notifications.NotificationTypeReviewReminder,
		Recipients:  recipients,
		DocumentKey: key,
		TemplateContext: map[string]any{
			"Name":  strings.Join(names, ", "),
			"Count": 1,
			"Documents": []map[string]any{{
				"DocumentKey": key,
				"Revision":    rev.Revision,
				"Title":       title,
				"DueDate":     formatDate(rev.ReviewDueDate),
				"Overdue":     overdue,
			}},
		},
	}
}

// NotifyReviewStarted returns a review_started handler notifying each
// participant of the new review.
func NotifyReviewStarted(n Notifier) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		reviews, _ := evt.Data["reviews"].([]models.Review)
		if evt.Document == nil || evt.Revision == nil {
			return nil
		}

		var result *multierror.Error
		for _, rv := range reviews {
			err := n.Notify(ctx, notify.NotificationRequest{
				Type:        notifications.NotificationTypeReviewStarted,
				Recipients:  []notifications.Recipient{{Email: rv.Reviewer}},
				DocumentKey: evt.Document.DocumentKey,
				TemplateContext: map[string]any{
					"DocumentKey": evt.Document.DocumentKey,
					"Revision":    evt.Revision.Revision,
					"Title":       evt.Document.Title,
					"Role":        string(rv.Role),
					"DueDate":     formatDate(evt.Revision.ReviewDueDate),
				},
			})
			if err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(doctype.DateLayout)
}
