package transmittals

import (
	"context"
	"fmt"
	"time"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/models"
)

// Acknowledge records the date the recipient acknowledged receipt. A zero
// date means today.
func (p *Packager) Acknowledge(ctx context.Context, id uint, date time.Time) (*models.Transmittal, error) {
	if date.IsZero() {
		date = p.clock.Now()
	}
	date = clock.Date(date)

	trs, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if trs.AckOfReceiptDate != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAcknowledged, trs.TransmittalKey)
	}

	res := p.db.WithContext(ctx).Model(&models.Transmittal{}).
		Where("id = ? AND ack_of_receipt_date IS NULL", id).
		Updates(map[string]any{
			"ack_of_receipt_date": date,
			"updated_at":          p.clock.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("error acknowledging transmittal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAcknowledged, trs.TransmittalKey)
	}
	trs.AckOfReceiptDate = &date

	p.logger.Info("transmittal acknowledged",
		"transmittal_key", trs.TransmittalKey,
		"date", date.Format("2006-01-02"))
	return trs, nil
}

// IsOverdue reports whether an outgoing transmittal still waits for its
// acknowledgement of receipt more than days after it was issued.
func IsOverdue(t *models.Transmittal, now time.Time, days int) bool {
	if t.Direction != models.TransmittalOutgoing || t.AckOfReceiptDate != nil {
		return false
	}
	if t.Status == models.TransmittalStatusInvalid {
		return false
	}
	return clock.Date(now).After(dueDate(t, days))
}

// IsOverdue reports whether t is overdue with the packager's delay.
func (p *Packager) IsOverdue(t *models.Transmittal) bool {
	return IsOverdue(t, p.clock.Now(), p.ackDueDays)
}

// ListOverdue returns the outgoing transmittals waiting for an
// acknowledgement past their due date, oldest first.
func (p *Packager) ListOverdue(ctx context.Context) ([]models.Transmittal, error) {
	cutoff := clock.Today(p.clock).AddDate(0, 0, -p.ackDueDays)

	var candidates []models.Transmittal
	err := p.db.WithContext(ctx).
		Where("direction = ? AND ack_of_receipt_date IS NULL AND transmittal_date < ?",
			models.TransmittalOutgoing, cutoff).
		Order("transmittal_date ASC, id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("error listing overdue transmittals: %w", err)
	}

	overdue := candidates[:0]
	for _, t := range candidates {
		if p.IsOverdue(&t) {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}
