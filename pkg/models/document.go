package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Document is the identity record of a managed document. Its key is assigned
// once at creation and never rewritten.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentKey string    `gorm:"type:varchar(250);not null;uniqueIndex:idx_documents_category_key" json:"documentKey"`
	CategoryID  uint      `gorm:"not null;uniqueIndex:idx_documents_category_key" json:"categoryId"`
	Category    *Category `json:"-"`

	DocumentType string `gorm:"type:varchar(50);not null;index:idx_documents_type" json:"documentType"`
	Title        string `gorm:"type:text" json:"title"`

	// Mirrors of the latest revision, denormalized for listings.
	CurrentRevision     int        `gorm:"not null" json:"currentRevision"`
	CurrentRevisionDate *time.Time `json:"currentRevisionDate,omitempty"`

	IsIndexable bool `gorm:"not null" json:"isIndexable"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// ErrDocumentKeyImmutable is returned when an update tries to rewrite the
// key of an existing document.
var ErrDocumentKeyImmutable = errors.New("document key cannot be changed")

// BeforeUpdate rejects updates that change the document key.
func (d *Document) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("DocumentKey") {
		return ErrDocumentKeyImmutable
	}
	return nil
}

// GetDocumentByKey retrieves a document by key within a category.
func GetDocumentByKey(db *gorm.DB, categoryID uint, key string) (*Document, error) {
	var d Document
	if err := db.
		Where("category_id = ? AND document_key = ?", categoryID, key).
		First(&d).Error; err != nil {
		return nil, fmt.Errorf("error getting document %q: %w", key, err)
	}
	return &d, nil
}

// GetDocumentsByCategory retrieves all documents of a category ordered by
// key, which keeps exports deterministic.
func GetDocumentsByCategory(db *gorm.DB, categoryID uint) ([]Document, error) {
	var docs []Document
	err := db.
		Where("category_id = ?", categoryID).
		Order("document_key ASC").
		Find(&docs).Error
	return docs, err
}
