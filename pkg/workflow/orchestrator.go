// Package workflow creates and revises documents from submitted metadata and
// revision forms.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/ledger"
	"github.com/phase-edms/phase/pkg/models"
)

// Config holds the dependencies of an Orchestrator.
type Config struct {
	DB     *gorm.DB
	Types  *doctype.Registry
	Bus    *events.Bus
	Clock  clock.Clock
	Logger hclog.Logger
}

// Orchestrator performs the linked writes of document creation, revision
// creation and revision edits. Each save runs in one transaction; events
// are dispatched after it commits.
type Orchestrator struct {
	db     *gorm.DB
	types  *doctype.Registry
	bus    *events.Bus
	clock  clock.Clock
	logger hclog.Logger
}

// New returns an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Types == nil {
		cfg.Types = doctype.DefaultRegistry(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Logger)
	}

	return &Orchestrator{
		db:     cfg.DB,
		types:  cfg.Types,
		bus:    cfg.Bus,
		clock:  clock.Or(cfg.Clock),
		logger: cfg.Logger.Named("workflow"),
	}, nil
}

// Types returns the document type registry.
func (o *Orchestrator) Types() *doctype.Registry {
	return o.types
}

// Result is the committed state of a save.
type Result struct {
	Document *models.Document
	Metadata *models.Metadata
	Revision *models.Revision

	// Event is the name of the emitted event.
	Event string

	// HandlerErr holds the failures of event handlers. The save itself
	// succeeded.
	HandlerErr error
}

// DocumentOption sets extra fields on documents created by
// SaveDocumentForms.
type DocumentOption func(*models.Document)

// WithIndexable sets whether the new document is added to the search index.
func WithIndexable(indexable bool) DocumentOption {
	return func(d *models.Document) {
		d.IsIndexable = indexable
	}
}

// SaveDocumentForms creates or updates a document from its metadata and
// revision forms:
//
//   - a metadata record without identity creates the document, its first
//     revision and its metadata (document_created);
//   - a persisted metadata record with a new revision record appends a
//     revision (document_revised);
//   - persisted metadata and revision records are updated in place
//     (revision_edited).
//
// Both forms must be valid; otherwise ErrInvalidForm is returned and nothing
// is written.
func (o *Orchestrator) SaveDocumentForms(
	ctx context.Context,
	metadataForm *MetadataForm,
	revisionForm *RevisionForm,
	category *models.Category,
	opts ...DocumentOption,
) (*Result, error) {
	if category == nil {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidForm)
	}
	typ, err := o.types.Get(category.DocumentType)
	if err != nil {
		return nil, err
	}
	if metadataForm.Type().Name() != typ.Name() || revisionForm.Type().Name() != typ.Name() {
		return nil, fmt.Errorf("%w: forms are not of category type %q", ErrInvalidForm, typ.Name())
	}

	if !metadataForm.IsValid() {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidForm, metadataForm.Errors())
	}
	if !revisionForm.IsValid() {
		return nil, fmt.Errorf("%w: revision: %v", ErrInvalidForm, revisionForm.Errors())
	}

	metadata := metadataForm.Instance
	revision := revisionForm.Instance
	metadataBefore, revisionBefore := *metadata, *revision

	var result *Result
	var recorded []events.Event
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := events.NewRecorder(tx)
		w := &writer{
			tx:     tx,
			ledger: ledger.New(tx),
			rec:    rec,
			typ:    typ,
			now:    o.clock.Now(),
		}

		var err error
		switch {
		case !metadata.IsPersisted():
			result, err = w.createDocument(ctx, metadata, revision, category, opts)
		case !revision.IsPersisted():
			result, err = w.createRevision(ctx, metadata, revision)
		default:
			result, err = w.updateRevision(ctx, metadata, revision)
		}
		if err != nil {
			return err
		}
		recorded = rec.Events()
		return nil
	})
	if err != nil {
		// Identities assigned inside the rolled back transaction are void.
		*metadata, *revision = metadataBefore, revisionBefore
		return nil, err
	}

	o.logger.Info("document saved",
		"event", result.Event,
		"document_key", result.Document.DocumentKey,
		"revision", result.Revision.Revision,
	)

	result.HandlerErr = o.bus.DispatchAll(ctx, recorded)
	if result.HandlerErr != nil {
		o.logger.Warn("document event handlers failed",
			"document_key", result.Document.DocumentKey,
			"error", result.HandlerErr,
		)
	}
	return result, nil
}

// Load returns the persisted document, metadata and latest revision of a
// document, ready to be edited through forms.
func (o *Orchestrator) Load(ctx context.Context, documentID uint) (*models.Document, *models.Metadata, *models.Revision, error) {
	db := o.db.WithContext(ctx)

	var doc models.Document
	if err := db.First(&doc, documentID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("error getting document %d: %w", documentID, err)
	}
	metadata, err := models.GetMetadataByDocument(db, documentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if metadata.LatestRevision == nil {
		return nil, nil, nil, fmt.Errorf("%w: document %d", ledger.ErrNoRevisions, documentID)
	}
	return &doc, metadata, metadata.LatestRevision, nil
}
