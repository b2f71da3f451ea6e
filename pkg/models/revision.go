package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Revision is one step of a document's lifecycle. Revision numbers are unique
// per document.
type Revision struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uint      `gorm:"not null;uniqueIndex:idx_revisions_document_revision" json:"documentId"`
	Document   *Document `json:"-"`
	Revision   int       `gorm:"not null;uniqueIndex:idx_revisions_document_revision" json:"revision"`

	RevisionDate *time.Time `json:"revisionDate,omitempty"`
	ReceivedDate *time.Time `json:"receivedDate,omitempty"`
	Status       string     `gorm:"type:varchar(20)" json:"status,omitempty"`

	// File references are storage names; an empty name means no file.
	NativeFile string `gorm:"type:varchar(1024)" json:"nativeFile,omitempty"`
	PDFFile    string `gorm:"column:pdf_file;type:varchar(1024)" json:"pdfFile,omitempty"`

	FinalRevision bool `gorm:"not null" json:"finalRevision"`

	Leader    string   `gorm:"type:varchar(250)" json:"leader,omitempty"`
	Approver  string   `gorm:"type:varchar(250)" json:"approver,omitempty"`
	Reviewers []string `gorm:"serializer:json;type:jsonb" json:"reviewers,omitempty"`

	ReviewStartDate *time.Time `gorm:"index:idx_revisions_review_start" json:"reviewStartDate,omitempty"`
	ReviewDueDate   *time.Time `json:"reviewDueDate,omitempty"`
	ReviewEndDate   *time.Time `gorm:"index:idx_revisions_review_end" json:"reviewEndDate,omitempty"`

	Fields map[string]any `gorm:"serializer:json;type:jsonb" json:"fields,omitempty"`
}

// TableName specifies the table name.
func (Revision) TableName() string {
	return "revisions"
}

// IsPersisted reports whether the record already has an identity.
func (r *Revision) IsPersisted() bool {
	return r != nil && r.ID != 0
}

// Files returns the non-empty file references of the revision, native first.
func (r *Revision) Files(native, pdf bool) []string {
	var files []string
	if native && r.NativeFile != "" {
		files = append(files, r.NativeFile)
	}
	if pdf && r.PDFFile != "" {
		files = append(files, r.PDFFile)
	}
	return files
}

// IsUnderReview reports whether a review has started and not yet ended.
func (r *Revision) IsUnderReview() bool {
	return r.ReviewStartDate != nil && r.ReviewEndDate == nil
}

// IsReviewed reports whether the review has ended.
func (r *Revision) IsReviewed() bool {
	return r.ReviewEndDate != nil
}

// SetField sets a type-specific field value.
func (r *Revision) SetField(name string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = value
}

// GetRevision retrieves a revision by document and revision number.
func GetRevision(db *gorm.DB, documentID uint, number int) (*Revision, error) {
	var r Revision
	if err := db.
		Where("document_id = ? AND revision = ?", documentID, number).
		First(&r).Error; err != nil {
		return nil, fmt.Errorf("error getting revision %d of document %d: %w", number, documentID, err)
	}
	return &r, nil
}

// GetRevisionsUnderReview retrieves all revisions whose review has started
// and not ended, oldest start first.
func GetRevisionsUnderReview(db *gorm.DB) ([]Revision, error) {
	var revisions []Revision
	err := db.
		Preload("Document").
		Where("review_start_date IS NOT NULL AND review_end_date IS NULL").
		Order("review_start_date ASC, id ASC").
		Find(&revisions).Error
	return revisions, err
}
