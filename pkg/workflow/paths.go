package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/ledger"
	"github.com/phase-edms/phase/pkg/models"
)

// writer performs the writes of one save inside its transaction.
type writer struct {
	tx     *gorm.DB
	ledger *ledger.Ledger
	rec    *events.Recorder
	typ    doctype.Type
	now    time.Time
}

func (w *writer) createDocument(
	ctx context.Context,
	metadata *models.Metadata,
	revision *models.Revision,
	category *models.Category,
	opts []DocumentOption,
) (*Result, error) {
	if revision.IsPersisted() {
		return nil, fmt.Errorf("%w: revision %d already belongs to a document", ErrInvalidForm, revision.ID)
	}
	if revision.RevisionDate == nil {
		today := clock.Date(w.now)
		revision.RevisionDate = &today
	}

	key := metadata.DocumentKey
	if key == "" {
		var err error
		if key, err = w.typ.GenerateKey(metadata, category); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidForm, err)
		}
	}
	if err := doctype.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}

	first := w.typ.FirstRevisionNumber()
	doc := &models.Document{
		DocumentKey:         key,
		CategoryID:          category.ID,
		DocumentType:        w.typ.Name(),
		Title:               documentTitle(metadata, key),
		CurrentRevision:     first,
		CurrentRevisionDate: revision.RevisionDate,
		IsIndexable:         true,
	}
	for _, opt := range opts {
		opt(doc)
	}

	err := w.tx.WithContext(ctx).Omit(clause.Associations).Create(doc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating document %s: %w", key, err)
	}

	if err := w.ledger.Append(ctx, doc.ID, nil, first, revision); err != nil {
		return nil, w.conflict(err)
	}

	metadata.DocumentID = &doc.ID
	metadata.Document = doc
	metadata.LatestRevisionID = &revision.ID
	metadata.LatestRevision = revision
	metadata.DocumentKey = key
	metadata.DocumentType = w.typ.Name()
	if err := w.tx.WithContext(ctx).Omit(clause.Associations).Create(metadata).Error; err != nil {
		return nil, fmt.Errorf("error creating metadata of %s: %w", key, err)
	}

	return w.emit(events.DocumentCreated, w.typ.Name(), doc, metadata, revision)
}

func (w *writer) createRevision(ctx context.Context, metadata *models.Metadata, revision *models.Revision) (*Result, error) {
	doc, err := w.document(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if metadata.LatestRevisionID == nil {
		return nil, fmt.Errorf("%w: %v", ErrRevisionConflict, ledger.ErrNoRevisions)
	}

	// The number derives from the latest revision the submitter saw.
	var previous models.Revision
	if err := w.tx.WithContext(ctx).First(&previous, *metadata.LatestRevisionID).Error; err != nil {
		return nil, fmt.Errorf("error getting latest revision of %s: %w", doc.DocumentKey, err)
	}
	previousID := previous.ID

	if revision.RevisionDate == nil {
		today := clock.Date(w.now)
		revision.RevisionDate = &today
	}
	if err := w.ledger.Append(ctx, doc.ID, &previous, w.typ.FirstRevisionNumber(), revision); err != nil {
		return nil, w.conflict(err)
	}

	if err := w.saveMetadata(ctx, metadata); err != nil {
		return nil, err
	}
	if err := w.ledger.Repoint(ctx, metadata, doc, revision, &previousID); err != nil {
		return nil, w.conflict(err)
	}
	if err := w.mirrorTitle(ctx, doc, metadata); err != nil {
		return nil, err
	}

	return w.emit(events.DocumentRevised, w.typ.Name(), doc, metadata, revision)
}

func (w *writer) updateRevision(ctx context.Context, metadata *models.Metadata, revision *models.Revision) (*Result, error) {
	doc, err := w.document(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if revision.DocumentID != doc.ID {
		return nil, fmt.Errorf("%w: revision %d does not belong to %s", ErrInvalidForm, revision.ID, doc.DocumentKey)
	}

	res := w.tx.WithContext(ctx).
		Omit(clause.Associations, "DocumentID", "Revision", "CreatedAt").
		Save(revision)
	if res.Error != nil {
		return nil, fmt.Errorf("error saving revision %d of %s: %w", revision.Revision, doc.DocumentKey, res.Error)
	}
	if err := w.saveMetadata(ctx, metadata); err != nil {
		return nil, err
	}

	updates := map[string]any{"title": documentTitle(metadata, doc.DocumentKey)}
	if metadata.LatestRevisionID != nil && *metadata.LatestRevisionID == revision.ID {
		updates["current_revision_date"] = revision.RevisionDate
		doc.CurrentRevisionDate = revision.RevisionDate
	}
	if err := w.tx.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("error updating document %s: %w", doc.DocumentKey, err)
	}
	doc.Title = updates["title"].(string)

	return w.emit(events.RevisionEdited, doctype.RevisionSender(w.typ), doc, metadata, revision)
}

// document loads the document of persisted metadata and checks the key was
// not rewritten.
func (w *writer) document(ctx context.Context, metadata *models.Metadata) (*models.Document, error) {
	if metadata.DocumentID == nil {
		return nil, fmt.Errorf("%w: metadata %d has no document", ErrInvalidForm, metadata.ID)
	}
	var doc models.Document
	if err := w.tx.WithContext(ctx).First(&doc, *metadata.DocumentID).Error; err != nil {
		return nil, fmt.Errorf("error getting document %d: %w", *metadata.DocumentID, err)
	}
	if metadata.DocumentKey != doc.DocumentKey {
		return nil, fmt.Errorf("%w: %w", ErrInvalidForm, models.ErrDocumentKeyImmutable)
	}
	metadata.Document = &doc
	return &doc, nil
}

// saveMetadata updates the metadata fields. The latest revision pointer is
// only moved by the ledger.
func (w *writer) saveMetadata(ctx context.Context, metadata *models.Metadata) error {
	err := w.tx.WithContext(ctx).
		Omit(clause.Associations, "DocumentID", "LatestRevisionID", "CreatedAt").
		Save(metadata).Error
	if err != nil {
		return fmt.Errorf("error saving metadata of %s: %w", metadata.DocumentKey, err)
	}
	return nil
}

func (w *writer) mirrorTitle(ctx context.Context, doc *models.Document, metadata *models.Metadata) error {
	title := documentTitle(metadata, doc.DocumentKey)
	if title == doc.Title {
		return nil
	}
	if err := w.tx.WithContext(ctx).Model(doc).Update("title", title).Error; err != nil {
		return fmt.Errorf("error updating document %s: %w", doc.DocumentKey, err)
	}
	doc.Title = title
	return nil
}

func (w *writer) emit(name, sender string, doc *models.Document, metadata *models.Metadata, revision *models.Revision) (*Result, error) {
	evt := events.New(name, sender, w.now)
	evt.Document = doc
	evt.Metadata = metadata
	evt.Revision = revision
	if err := w.rec.Record(evt); err != nil {
		return nil, err
	}
	return &Result{
		Document: doc,
		Metadata: metadata,
		Revision: revision,
		Event:    name,
	}, nil
}

func (w *writer) conflict(err error) error {
	if errors.Is(err, ledger.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrRevisionConflict, err)
	}
	return err
}

// documentTitle is the metadata title, or the key for types without one.
func documentTitle(m *models.Metadata, key string) string {
	if m.Title != "" {
		return m.Title
	}
	return key
}
