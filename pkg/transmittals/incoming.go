package transmittals

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/storage"
)

// IncomingRevision is a revision listed by a received transmittal.
type IncomingRevision struct {
	DocumentKey string
	Revision    int
	Title       string
	Status      string
	NativeFile  string
	PDFFile     string
}

// IncomingRequest describes a received transmittal. Its files are expected
// under {TobecheckedDir}/{key}/.
type IncomingRequest struct {
	CategoryID       uint
	ContractNumber   string
	Originator       string
	Recipient        string
	SequentialNumber int
	TransmittalDate  time.Time

	TobecheckedDir string
	AcceptedDir    string
	RejectedDir    string

	Revisions []IncomingRevision
}

func (r IncomingRequest) validate() error {
	switch {
	case r.CategoryID == 0:
		return fmt.Errorf("%w: category", ErrMissingField)
	case r.ContractNumber == "" || r.Originator == "" || r.Recipient == "":
		return fmt.Errorf("%w: contract_number, originator and recipient", ErrMissingField)
	case r.SequentialNumber <= 0:
		return fmt.Errorf("%w: sequential_number", ErrMissingField)
	case r.TobecheckedDir == "" || r.AcceptedDir == "" || r.RejectedDir == "":
		return fmt.Errorf("%w: tobechecked_dir, accepted_dir and rejected_dir", ErrMissingField)
	case len(r.Revisions) == 0:
		return ErrNoRevisions
	}
	return nil
}

// CreateIncoming records a received transmittal with status new.
func (p *Packager) CreateIncoming(ctx context.Context, req IncomingRequest) (*models.Transmittal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	date := req.TransmittalDate
	if date.IsZero() {
		date = clock.Today(p.clock)
	}

	trs := &models.Transmittal{
		TransmittalKey:   Key(req.ContractNumber, req.Originator, req.Recipient, req.SequentialNumber),
		Direction:        models.TransmittalIncoming,
		CategoryID:       req.CategoryID,
		ContractNumber:   req.ContractNumber,
		Originator:       req.Originator,
		Recipient:        req.Recipient,
		SequentialNumber: req.SequentialNumber,
		TransmittalDate:  clock.Date(date),
		Status:           models.TransmittalStatusNew,
		TobecheckedDir:   storage.Clean(req.TobecheckedDir),
		AcceptedDir:      storage.Clean(req.AcceptedDir),
		RejectedDir:      storage.Clean(req.RejectedDir),
	}

	err := p.transaction(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		snapshots, err := resolveIncoming(tx, req.Revisions)
		if err != nil {
			return err
		}
		if err := p.insert(tx, trs, snapshots); err != nil {
			return err
		}
		evt := events.New(events.TransmittalCreated, events.SenderIncomingTransmittal, p.clock.Now())
		evt.Transmittal = trs
		return rec.Record(evt)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("incoming transmittal received", "transmittal_key", trs.TransmittalKey)
	return trs, nil
}

// resolveIncoming links the listed revisions to known documents. RevisionID
// stays zero for revisions not recorded yet.
func resolveIncoming(tx *gorm.DB, revisions []IncomingRevision) ([]models.TransmittalRevision, error) {
	seen := make(map[string]bool, len(revisions))
	snapshots := make([]models.TransmittalRevision, 0, len(revisions))
	for _, r := range revisions {
		if seen[r.DocumentKey] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, r.DocumentKey)
		}
		seen[r.DocumentKey] = true

		var doc models.Document
		if err := tx.Where("document_key = ?", r.DocumentKey).First(&doc).Error; err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, r.DocumentKey)
		}
		snap := models.TransmittalRevision{
			DocumentID:  doc.ID,
			DocumentKey: doc.DocumentKey,
			Title:       r.Title,
			Revision:    r.Revision,
			Status:      r.Status,
			NativeFile:  r.NativeFile,
			PDFFile:     r.PDFFile,
		}
		if snap.Title == "" {
			snap.Title = doc.Title
		}
		if rev, err := models.GetRevision(tx, doc.ID, r.Revision); err == nil {
			snap.RevisionID = rev.ID
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Accept moves the files of an incoming transmittal from the to-be-checked
// directory to the accepted directory and marks every listed revision
// accepted.
func (p *Packager) Accept(ctx context.Context, id uint) (*models.Transmittal, error) {
	return p.close(ctx, id, models.TransmittalStatusAccepted, "")
}

// Reject moves the files of an incoming transmittal to the rejected
// directory.
func (p *Packager) Reject(ctx context.Context, id uint, reason string) (*models.Transmittal, error) {
	return p.close(ctx, id, models.TransmittalStatusRejected, reason)
}

// Invalidate marks a new incoming transmittal invalid, leaving its files
// where they are.
func (p *Packager) Invalidate(ctx context.Context, id uint, reason string) (*models.Transmittal, error) {
	trs, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if trs.Direction != models.TransmittalIncoming {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongDirection, trs.TransmittalKey, trs.Direction)
	}
	if err := p.setStatus(p.db.WithContext(ctx), trs, models.TransmittalStatusInvalid, reason); err != nil {
		return nil, err
	}
	return trs, nil
}

func (p *Packager) close(ctx context.Context, id uint, to models.TransmittalStatus, reason string) (*models.Transmittal, error) {
	trs, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if trs.Direction != models.TransmittalIncoming {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongDirection, trs.TransmittalKey, trs.Direction)
	}

	target := trs.AcceptedDir
	if to == models.TransmittalStatusRejected {
		target = trs.RejectedDir
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if trs.Status == models.TransmittalStatusNew {
			if err := p.setStatus(tx, trs, models.TransmittalStatusProcessing, ""); err != nil {
				return err
			}
		}
		if err := p.setStatus(tx, trs, to, reason); err != nil {
			return err
		}
		accepted := to == models.TransmittalStatusAccepted
		if err := tx.Model(&models.TransmittalRevision{}).
			Where("transmittal_id = ?", trs.ID).
			Update("accepted", accepted).Error; err != nil {
			return fmt.Errorf("error updating transmittal revisions: %w", err)
		}
		for i := range trs.Revisions {
			trs.Revisions[i].Accepted = &accepted
		}

		// Files move last so a failed move rolls the status back.
		return p.store.MoveDir(ctx,
			storage.Join(trs.TobecheckedDir, trs.TransmittalKey),
			storage.Join(target, trs.TransmittalKey))
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("incoming transmittal closed",
		"transmittal_key", trs.TransmittalKey,
		"status", string(trs.Status))
	return trs, nil
}
