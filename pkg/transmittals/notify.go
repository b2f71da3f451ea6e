package transmittals

import (
	"context"

	notify "github.com/phase-edms/phase/internal/notifications"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/notifications"
)

// Notifier resolves and sends notifications.
type Notifier interface {
	Notify(ctx context.Context, req notify.NotificationRequest) error
}

// NotifyCreated returns a transmittal_created handler that tells the
// recipient organisation about an outgoing transmittal. recipients maps an
// organisation code to its addresses; unknown recipients are skipped.
func NotifyCreated(n Notifier, recipients map[string][]string) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		trs := evt.Transmittal
		if trs == nil {
			return nil
		}
		addrs := recipients[trs.Recipient]
		if len(addrs) == 0 {
			return nil
		}

		to := make([]notifications.Recipient, 0, len(addrs))
		for _, a := range addrs {
			to = append(to, notifications.Recipient{Email: a})
		}

		revisions := make([]map[string]any, 0, len(trs.Revisions))
		for _, r := range trs.Revisions {
			revisions = append(revisions, map[string]any{
				"DocumentKey": r.DocumentKey,
				"Revision":    r.Revision,
				"Title":       r.Title,
			})
		}

		return n.Notify(ctx, notify.NotificationRequest{
			Type:           notifications.NotificationTypeTransmittalCreated,
			Recipients:     to,
			TransmittalKey: trs.TransmittalKey,
			TemplateContext: map[string]any{
				"TransmittalKey":  trs.TransmittalKey,
				"Originator":      trs.Originator,
				"Recipient":       trs.Recipient,
				"TransmittalDate": trs.TransmittalDate.Format(doctype.DateLayout),
				"Revisions":       revisions,
			},
		})
	}
}
