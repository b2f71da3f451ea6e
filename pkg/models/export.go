package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExportStatus is the processing state of an export job.
type ExportStatus string

const (
	ExportStatusNew        ExportStatus = "new"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusDone       ExportStatus = "done"
	ExportStatusFailed     ExportStatus = "failed"
)

// Export is an asynchronous request to package the documents of a category.
type Export struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedOn time.Time `gorm:"not null" json:"createdOn"`
	UpdatedAt time.Time `json:"updatedAt"`

	Owner      string    `gorm:"type:varchar(250);not null" json:"owner"`
	CategoryID uint      `gorm:"not null;index:idx_exports_category" json:"categoryId"`
	Category   *Category `json:"-"`

	// Format selects native files, pdf files or both.
	Format string `gorm:"type:varchar(10);not null" json:"format"`
	// Revisions selects the latest revision or all revisions.
	Revisions string `gorm:"type:varchar(10);not null" json:"revisions"`
	// FileFormat is "zip" for file archives and "csv" for metadata listings.
	FileFormat string `gorm:"type:varchar(10);not null" json:"fileFormat"`

	// DocumentKeys restricts the export to these documents when not empty.
	DocumentKeys []string `gorm:"serializer:json;type:jsonb" json:"documentKeys,omitempty"`

	Status ExportStatus `gorm:"type:varchar(20);not null;index:idx_exports_status" json:"status"`
	Error  string       `gorm:"type:text" json:"error,omitempty"`
}

// TableName specifies the table name.
func (Export) TableName() string {
	return "exports"
}

// BeforeCreate assigns the identifier and initial status.
func (e *Export) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = ExportStatusNew
	}
	if e.CreatedOn.IsZero() {
		e.CreatedOn = time.Now()
	}
	return nil
}

// Filename returns the name of the produced file:
// export_{YYYYMMDD}_{uuid}.{ext}
func (e *Export) Filename() string {
	return fmt.Sprintf("export_%s_%s.%s",
		e.CreatedOn.Format("20060102"), e.ID.String(), e.FileFormat)
}

// GetNextExport retrieves the oldest export with the given status.
func GetNextExport(db *gorm.DB, status ExportStatus) (*Export, error) {
	var e Export
	if err := db.
		Where("status = ?", status).
		Order("created_on ASC").
		First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
