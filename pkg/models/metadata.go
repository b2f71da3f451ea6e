package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Metadata holds the type-specific descriptive fields of a document. Exactly
// one Metadata row exists per Document.
//
// Fields shared by most document types live in columns; the remainder of a
// type's shape is kept in Fields.
type Metadata struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID *uint     `gorm:"uniqueIndex:idx_metadata_document" json:"documentId,omitempty"`
	Document   *Document `json:"-"`

	DocumentKey  string `gorm:"type:varchar(250);not null;index:idx_metadata_key" json:"documentKey"`
	DocumentType string `gorm:"type:varchar(50);not null" json:"documentType"`

	LatestRevisionID *uint     `gorm:"index:idx_metadata_latest_revision" json:"latestRevisionId,omitempty"`
	LatestRevision   *Revision `gorm:"foreignKey:LatestRevisionID" json:"-"`

	Title            string `gorm:"type:text" json:"title"`
	ContractNumber   string `gorm:"type:varchar(50)" json:"contractNumber,omitempty"`
	Originator       string `gorm:"type:varchar(50)" json:"originator,omitempty"`
	Recipient        string `gorm:"type:varchar(50)" json:"recipient,omitempty"`
	Unit             string `gorm:"type:varchar(50)" json:"unit,omitempty"`
	Discipline       string `gorm:"type:varchar(50)" json:"discipline,omitempty"`
	DocType          string `gorm:"column:doc_type;type:varchar(50)" json:"docType,omitempty"`
	SequentialNumber string `gorm:"type:varchar(10)" json:"sequentialNumber,omitempty"`

	Fields map[string]any `gorm:"serializer:json;type:jsonb" json:"fields,omitempty"`
}

// TableName specifies the table name.
func (Metadata) TableName() string {
	return "metadata"
}

// IsPersisted reports whether the record already has an identity.
func (m *Metadata) IsPersisted() bool {
	return m != nil && m.ID != 0
}

// Field returns a type-specific field value.
func (m *Metadata) Field(name string) (any, bool) {
	if m.Fields == nil {
		return nil, false
	}
	v, ok := m.Fields[name]
	return v, ok
}

// SetField sets a type-specific field value.
func (m *Metadata) SetField(name string, value any) {
	if m.Fields == nil {
		m.Fields = make(map[string]any)
	}
	m.Fields[name] = value
}

// GetMetadataByDocument retrieves the metadata of a document with its
// latest revision preloaded.
func GetMetadataByDocument(db *gorm.DB, documentID uint) (*Metadata, error) {
	var m Metadata
	if err := db.
		Preload("LatestRevision").
		Where("document_id = ?", documentID).
		First(&m).Error; err != nil {
		return nil, fmt.Errorf("error getting metadata for document %d: %w", documentID, err)
	}
	return &m, nil
}
