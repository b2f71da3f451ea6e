package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phase-edms/phase/pkg/models"
)

// CreateDocument inserts a document with its metadata and the given
// revisions, numbered from first. The last revision is the latest.
func CreateDocument(t *testing.T, db *gorm.DB, category *models.Category, key string, first int, revisions ...models.Revision) (*models.Document, []*models.Revision) {
	t.Helper()

	if len(revisions) == 0 {
		revisions = []models.Revision{{}}
	}

	doc := &models.Document{
		DocumentKey:  key,
		CategoryID:   category.ID,
		DocumentType: category.DocumentType,
		Title:        key,
		IsIndexable:  true,
	}
	if err := db.Omit(clause.Associations).Create(doc).Error; err != nil {
		t.Fatalf("failed to create document: %v", err)
	}

	saved := make([]*models.Revision, len(revisions))
	for i := range revisions {
		rev := revisions[i]
		rev.DocumentID = doc.ID
		rev.Revision = first + i
		if rev.RevisionDate == nil {
			d := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
			rev.RevisionDate = &d
		}
		if err := db.Omit(clause.Associations).Create(&rev).Error; err != nil {
			t.Fatalf("failed to create revision: %v", err)
		}
		saved[i] = &rev
	}
	latest := saved[len(saved)-1]

	doc.CurrentRevision = latest.Revision
	doc.CurrentRevisionDate = latest.RevisionDate
	if err := db.Model(doc).Updates(map[string]any{
		"current_revision":      doc.CurrentRevision,
		"current_revision_date": doc.CurrentRevisionDate,
	}).Error; err != nil {
		t.Fatalf("failed to update document: %v", err)
	}

	metadata := &models.Metadata{
		DocumentID:       &doc.ID,
		DocumentKey:      key,
		DocumentType:     category.DocumentType,
		LatestRevisionID: &latest.ID,
		Title:            key,
	}
	if err := db.Omit(clause.Associations).Create(metadata).Error; err != nil {
		t.Fatalf("failed to create metadata: %v", err)
	}

	return doc, saved
}
