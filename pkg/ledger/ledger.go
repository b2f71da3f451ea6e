// Package ledger maintains the ordered, append-only sequence of revisions of
// each document together with its latest-revision pointers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phase-edms/phase/pkg/models"
)

var (
	// ErrConflict is returned when another writer appended a revision or moved
	// the latest pointer concurrently.
	ErrConflict = errors.New("concurrent revision update")

	// ErrNoRevisions is returned when a document has no revision yet.
	ErrNoRevisions = errors.New("document has no revisions")

	// ErrCorrupt is returned by Verify when the ledger invariants do not hold.
	ErrCorrupt = errors.New("revision ledger is inconsistent")
)

// DefaultPageSize is the number of revisions loaded per query by All.
const DefaultPageSize = 50

// Ledger reads and appends revisions. It runs its queries on the handle it
// was created with, so a Ledger built from a transaction participates in it.
type Ledger struct {
	db       *gorm.DB
	pageSize int
}

// New returns a ledger operating on db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, pageSize: DefaultPageSize}
}

// WithPageSize returns a copy of the ledger loading n revisions per query.
func (l *Ledger) WithPageSize(n int) *Ledger {
	if n <= 0 {
		n = DefaultPageSize
	}
	return &Ledger{db: l.db, pageSize: n}
}

// Latest returns the revision the document's metadata points to.
func (l *Ledger) Latest(ctx context.Context, documentID uint) (*models.Revision, error) {
	var m models.Metadata
	err := l.db.WithContext(ctx).
		Select("latest_revision_id").
		Where("document_id = ?", documentID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && m.LatestRevisionID == nil) {
		return nil, fmt.Errorf("%w: document %d", ErrNoRevisions, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting latest revision of document %d: %w", documentID, err)
	}

	var r models.Revision
	if err := l.db.WithContext(ctx).First(&r, *m.LatestRevisionID).Error; err != nil {
		return nil, fmt.Errorf("error getting revision %d: %w", *m.LatestRevisionID, err)
	}
	return &r, nil
}

// Highest returns the saved revision with the greatest number.
func (l *Ledger) Highest(ctx context.Context, documentID uint) (*models.Revision, error) {
	var r models.Revision
	err := l.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("revision DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: document %d", ErrNoRevisions, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting highest revision of document %d: %w", documentID, err)
	}
	return &r, nil
}

// All returns the revisions of a document ordered by revision number. The
// sequence is loaded lazily page by page and restarts from the first
// revision every time it is ranged over.
func (l *Ledger) All(ctx context.Context, documentID uint) iter.Seq2[*models.Revision, error] {
	return func(yield func(*models.Revision, error) bool) {
		after := -1
		for {
			var page []models.Revision
			err := l.db.WithContext(ctx).
				Where("document_id = ? AND revision > ?", documentID, after).
				Order("revision ASC").
				Limit(l.pageSize).
				Find(&page).Error
			if err != nil {
				yield(nil, fmt.Errorf("error listing revisions of document %d: %w", documentID, err))
				return
			}

			for i := range page {
				if !yield(&page[i], nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			after = page[len(page)-1].Revision
		}
	}
}

// Count returns the number of revisions of a document.
func (l *Ledger) Count(ctx context.Context, documentID uint) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&models.Revision{}).
		Where("document_id = ?", documentID).
		Count(&n).Error
	return n, err
}

// Append numbers rev and saves it under the document. The number is first
// when previous is nil and previous.Revision+1 otherwise. A revision with the
// same number saved concurrently yields ErrConflict.
func (l *Ledger) Append(ctx context.Context, documentID uint, previous *models.Revision, first int, rev *models.Revision) error {
	rev.DocumentID = documentID
	if previous == nil {
		rev.Revision = first
	} else {
		rev.Revision = previous.Revision + 1
	}

	err := l.db.WithContext(ctx).Omit(clause.Associations).Create(rev).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: revision %d of document %d already exists", ErrConflict, rev.Revision, documentID)
	}
	if err != nil {
		return fmt.Errorf("error saving revision %d of document %d: %w", rev.Revision, documentID, err)
	}
	return nil
}

// Repoint moves the metadata latest pointer from previousID to rev and
// mirrors the revision on the document. The pointer only moves if it still
// equals previousID; otherwise ErrConflict is returned.
func (l *Ledger) Repoint(ctx context.Context, m *models.Metadata, doc *models.Document, rev *models.Revision, previousID *uint) error {
	q := l.db.WithContext(ctx).Model(&models.Metadata{}).Where("id = ?", m.ID)
	if previousID == nil {
		q = q.Where("latest_revision_id IS NULL")
	} else {
		q = q.Where("latest_revision_id = ?", *previousID)
	}
	res := q.Update("latest_revision_id", rev.ID)
	if res.Error != nil {
		return fmt.Errorf("error updating latest revision of document %d: %w", doc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: latest revision of document %d moved", ErrConflict, doc.ID)
	}
	m.LatestRevisionID = &rev.ID
	m.LatestRevision = rev

	doc.CurrentRevision = rev.Revision
	doc.CurrentRevisionDate = rev.RevisionDate
	err := l.db.WithContext(ctx).Model(doc).Updates(map[string]any{
		"current_revision":      rev.Revision,
		"current_revision_date": rev.RevisionDate,
	}).Error
	if err != nil {
		return fmt.Errorf("error updating current revision of document %d: %w", doc.ID, err)
	}
	return nil
}

// Verify checks that the revision numbers of a document are exactly
// first, first+1, ... and that the metadata and document pointers reference
// the highest revision.
func (l *Ledger) Verify(ctx context.Context, documentID uint, first int) error {
	expected := first
	var last *models.Revision
	for rev, err := range l.All(ctx, documentID) {
		if err != nil {
			return err
		}
		if rev.Revision != expected {
			return fmt.Errorf("%w: document %d has revision %d, want %d", ErrCorrupt, documentID, rev.Revision, expected)
		}
		expected++
		last = rev
	}
	if last == nil {
		return fmt.Errorf("%w: document %d", ErrNoRevisions, documentID)
	}

	latest, err := l.Latest(ctx, documentID)
	if err != nil {
		return err
	}
	if latest.ID != last.ID {
		return fmt.Errorf("%w: document %d latest pointer is revision %d, want %d",
			ErrCorrupt, documentID, latest.Revision, last.Revision)
	}

	var doc models.Document
	if err := l.db.WithContext(ctx).First(&doc, documentID).Error; err != nil {
		return fmt.Errorf("error getting document %d: %w", documentID, err)
	}
	if doc.CurrentRevision != last.Revision {
		return fmt.Errorf("%w: document %d current revision is %d, want %d",
			ErrCorrupt, documentID, doc.CurrentRevision, last.Revision)
	}
	return nil
}
