// Package transmittals issues and receives transmittals: numbered packages
// of document revisions exchanged between the parties of a contract.
package transmittals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
	"github.com/phase-edms/phase/pkg/storage"
)

var (
	ErrInvalidTransition   = errors.New("invalid transmittal status transition")
	ErrNoRevisions         = errors.New("transmittal has no revisions")
	ErrDuplicateDocument   = errors.New("document selected twice")
	ErrRevisionMismatch    = errors.New("revision does not belong to the document")
	ErrSequenceConflict    = errors.New("transmittal number already taken")
	ErrWrongDirection      = errors.New("operation does not apply to this transmittal direction")
	ErrAlreadyAcknowledged = errors.New("transmittal was already acknowledged")
	ErrMissingField        = errors.New("missing required field")
	ErrUnknownDocument     = errors.New("unknown document")
)

// DefaultAckDueDays is the number of days the recipient has to acknowledge
// receipt of an outgoing transmittal.
const DefaultAckDueDays = 7

// Config holds the dependencies of a Packager.
type Config struct {
	DB      *gorm.DB
	Bus     *events.Bus
	Storage storage.Storage
	Clock   clock.Clock
	Logger  hclog.Logger

	// OutgoingDir is the storage directory issued packages are written to.
	OutgoingDir string
	// AckDueDays overrides DefaultAckDueDays when positive.
	AckDueDays int
}

// Packager creates and processes transmittals.
type Packager struct {
	db          *gorm.DB
	bus         *events.Bus
	store       storage.Storage
	clock       clock.Clock
	logger      hclog.Logger
	outgoingDir string
	ackDueDays  int
}

// NewPackager returns a packager.
func NewPackager(cfg Config) (*Packager, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Logger)
	}
	if cfg.OutgoingDir == "" {
		cfg.OutgoingDir = "outgoing"
	}
	if cfg.AckDueDays <= 0 {
		cfg.AckDueDays = DefaultAckDueDays
	}
	return &Packager{
		db:          cfg.DB,
		bus:         cfg.Bus,
		store:       cfg.Storage,
		clock:       clock.Or(cfg.Clock),
		logger:      cfg.Logger.Named("transmittals"),
		outgoingDir: storage.Clean(cfg.OutgoingDir),
		ackDueDays:  cfg.AckDueDays,
	}, nil
}

// Register subscribes the outgoing post-save handler to the bus.
func (p *Packager) Register() {
	p.bus.SubscribeSender(events.TransmittalCreated, events.SenderOutgoingTransmittal,
		"transmittal-post-save", p.HandleCreated)
}

// Key returns the transmittal key
// {contract}-{originator}-{recipient}-TRS-{seq:05}.
func Key(contract, originator, recipient string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-TRS-%05d", contract, originator, recipient, seq)
}

// Selection picks a document revision for an outgoing transmittal. A zero
// RevisionID selects the latest revision.
type Selection struct {
	DocumentID uint
	RevisionID uint
}

// OutgoingRequest describes an outgoing transmittal.
type OutgoingRequest struct {
	CategoryID     uint
	ContractNumber string
	Originator     string
	Recipient      string
	Revisions      []Selection
}

func (r OutgoingRequest) validate() error {
	switch {
	case r.CategoryID == 0:
		return fmt.Errorf("%w: category", ErrMissingField)
	case r.ContractNumber == "":
		return fmt.Errorf("%w: contract_number", ErrMissingField)
	case r.Originator == "":
		return fmt.Errorf("%w: originator", ErrMissingField)
	case r.Recipient == "":
		return fmt.Errorf("%w: recipient", ErrMissingField)
	case len(r.Revisions) == 0:
		return ErrNoRevisions
	}
	return nil
}

// CreateOutgoing numbers a new outgoing transmittal and snapshots the
// selected revisions in one transaction. transmittal_created is dispatched
// after commit, which runs the post-save handler.
func (p *Packager) CreateOutgoing(ctx context.Context, req OutgoingRequest) (*models.Transmittal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var trs *models.Transmittal
	err := p.transaction(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		snapshots, err := p.snapshots(tx, req.Revisions)
		if err != nil {
			return err
		}

		seq, err := models.NextTransmittalSequence(tx, req.ContractNumber, req.Originator, req.Recipient)
		if err != nil {
			return fmt.Errorf("error getting next sequence: %w", err)
		}

		trs = &models.Transmittal{
			TransmittalKey:   Key(req.ContractNumber, req.Originator, req.Recipient, seq),
			Direction:        models.TransmittalOutgoing,
			CategoryID:       req.CategoryID,
			ContractNumber:   req.ContractNumber,
			Originator:       req.Originator,
			Recipient:        req.Recipient,
			SequentialNumber: seq,
			TransmittalDate:  clock.Today(p.clock),
			Status:           models.TransmittalStatusNew,
			OutgoingDir:      p.outgoingDir,
		}
		if err := p.insert(tx, trs, snapshots); err != nil {
			return err
		}

		evt := events.New(events.TransmittalCreated, events.SenderOutgoingTransmittal, p.clock.Now())
		evt.Transmittal = trs
		return rec.Record(evt)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("outgoing transmittal created",
		"transmittal_key", trs.TransmittalKey,
		"revisions", len(trs.Revisions))
	return trs, nil
}

func (p *Packager) snapshots(tx *gorm.DB, selections []Selection) ([]models.TransmittalRevision, error) {
	seen := make(map[uint]bool, len(selections))
	snapshots := make([]models.TransmittalRevision, 0, len(selections))

	for _, sel := range selections {
		if seen[sel.DocumentID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateDocument, sel.DocumentID)
		}
		seen[sel.DocumentID] = true

		var doc models.Document
		if err := tx.First(&doc, sel.DocumentID).Error; err != nil {
			return nil, fmt.Errorf("error getting document %d: %w", sel.DocumentID, err)
		}
		meta, err := models.GetMetadataByDocument(tx, doc.ID)
		if err != nil {
			return nil, err
		}

		rev := meta.LatestRevision
		if sel.RevisionID != 0 {
			rev = &models.Revision{}
			if err := tx.First(rev, sel.RevisionID).Error; err != nil {
				return nil, fmt.Errorf("error getting revision %d: %w", sel.RevisionID, err)
			}
		}
		if rev == nil {
			return nil, fmt.Errorf("%w: document %s has no revision", ErrNoRevisions, doc.DocumentKey)
		}
		if rev.DocumentID != doc.ID {
			return nil, fmt.Errorf("%w: revision %d, document %s", ErrRevisionMismatch, rev.ID, doc.DocumentKey)
		}

		snap, err := snapshot(&doc, meta, rev)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func snapshot(doc *models.Document, meta *models.Metadata, rev *models.Revision) (models.TransmittalRevision, error) {
	fields, err := models.NewJSON(map[string]any{
		"metadata": meta.Fields,
		"revision": rev.Fields,
	})
	if err != nil {
		return models.TransmittalRevision{}, err
	}
	return models.TransmittalRevision{
		DocumentID:  doc.ID,
		RevisionID:  rev.ID,
		DocumentKey: doc.DocumentKey,
		Title:       meta.Title,
		Revision:    rev.Revision,
		Status:      rev.Status,
		NativeFile:  rev.NativeFile,
		PDFFile:     rev.PDFFile,
		RevisionAt:  rev.RevisionDate,
		Fields:      fields,
	}, nil
}

// insert writes the transmittal and its snapshots. A key collision means a
// concurrent transmittal took the sequence number.
func (p *Packager) insert(tx *gorm.DB, trs *models.Transmittal, snapshots []models.TransmittalRevision) error {
	if err := tx.Omit(clause.Associations).Create(trs).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrSequenceConflict, trs.TransmittalKey)
		}
		return fmt.Errorf("error creating transmittal: %w", err)
	}
	for i := range snapshots {
		snapshots[i].TransmittalID = trs.ID
	}
	if len(snapshots) > 0 {
		if err := tx.Create(&snapshots).Error; err != nil {
			return fmt.Errorf("error creating transmittal revisions: %w", err)
		}
	}
	trs.Revisions = snapshots
	return nil
}

// HandleCreated is the post-save handler of outgoing transmittals.
func (p *Packager) HandleCreated(ctx context.Context, evt events.Event) error {
	if evt.Transmittal == nil {
		return nil
	}
	_, err := p.Process(ctx, evt.Transmittal.ID)
	return err
}

// Process writes the files of an outgoing transmittal into
// {outgoing_dir}/{key}/ and marks it done. A transmittal left in processing
// by a failed run is resumed.
func (p *Packager) Process(ctx context.Context, id uint) (*models.Transmittal, error) {
	trs, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if trs.Direction != models.TransmittalOutgoing {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongDirection, trs.TransmittalKey, trs.Direction)
	}

	if trs.Status == models.TransmittalStatusNew {
		if err := p.setStatus(p.db.WithContext(ctx), trs, models.TransmittalStatusProcessing, ""); err != nil {
			return nil, err
		}
	} else if trs.Status != models.TransmittalStatusProcessing {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, trs.TransmittalKey, trs.Status)
	}

	dir := storage.Join(trs.OutgoingDir, trs.TransmittalKey)
	for _, rev := range trs.Revisions {
		for _, file := range []string{rev.NativeFile, rev.PDFFile} {
			if file == "" {
				continue
			}
			if err := p.store.Copy(ctx, file, storage.Join(dir, storage.Base(file))); err != nil {
				p.recordFailure(ctx, trs, err)
				return nil, fmt.Errorf("error copying %s: %w", file, err)
			}
		}
	}

	if err := p.setStatus(p.db.WithContext(ctx), trs, models.TransmittalStatusDone, ""); err != nil {
		return nil, err
	}
	p.logger.Info("outgoing transmittal processed", "transmittal_key", trs.TransmittalKey, "dir", dir)
	return trs, nil
}

func (p *Packager) recordFailure(ctx context.Context, trs *models.Transmittal, cause error) {
	err := p.db.WithContext(ctx).Model(&models.Transmittal{}).
		Where("id = ?", trs.ID).
		Update("status_description", cause.Error()).Error
	if err != nil {
		p.logger.Error("error recording transmittal failure", "transmittal_key", trs.TransmittalKey, "error", err)
	}
}

// setStatus moves the transmittal to a new status if nobody else did first.
func (p *Packager) setStatus(tx *gorm.DB, trs *models.Transmittal, to models.TransmittalStatus, description string) error {
	if err := checkTransition(trs, to); err != nil {
		return err
	}
	res := tx.Model(&models.Transmittal{}).
		Where("id = ? AND status = ?", trs.ID, trs.Status).
		Updates(map[string]any{
			"status":             to,
			"status_description": description,
			"updated_at":         p.clock.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("error updating transmittal status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is no longer %s", ErrInvalidTransition, trs.TransmittalKey, trs.Status)
	}
	trs.Status = to
	trs.StatusDescription = description
	return nil
}

func (p *Packager) load(ctx context.Context, id uint) (*models.Transmittal, error) {
	var trs models.Transmittal
	err := p.db.WithContext(ctx).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&trs, id).Error
	if err != nil {
		return nil, fmt.Errorf("error getting transmittal %d: %w", id, err)
	}
	return &trs, nil
}

func (p *Packager) transaction(ctx context.Context, fn func(tx *gorm.DB, rec *events.Recorder) error) error {
	var recorded []events.Event
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := events.NewRecorder(tx)
		if err := fn(tx, rec); err != nil {
			return err
		}
		recorded = rec.Events()
		return nil
	})
	if err != nil {
		return err
	}

	if err := p.bus.DispatchAll(ctx, recorded); err != nil {
		p.logger.Warn("transmittal event handlers failed", "error", err)
	}
	return nil
}

func dueDate(t *models.Transmittal, days int) time.Time {
	return clock.Date(t.TransmittalDate).AddDate(0, 0, days)
}
