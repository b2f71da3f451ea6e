package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DefaultReviewDurationDays is the review window applied when a category
// does not define its own.
const DefaultReviewDurationDays = 13

// Category groups documents of a single document type under a contract
// prefix (e.g. "FAC09001-FWF-000").
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Code is the structural prefix used when a document key cannot be built
	// from the document's own contract fields.
	Code string `gorm:"type:varchar(100);not null;uniqueIndex" json:"code"`
	Name string `gorm:"type:varchar(250);not null" json:"name"`

	// DocumentType is the document type tag of every document in the
	// category (see pkg/doctype).
	DocumentType string `gorm:"type:varchar(50);not null" json:"documentType"`

	// ReviewDurationDays overrides DefaultReviewDurationDays when positive.
	ReviewDurationDays int `json:"reviewDurationDays"`
}

// TableName specifies the table name.
func (Category) TableName() string {
	return "categories"
}

// ReviewDuration returns the number of days a review stays open.
func (c *Category) ReviewDuration() int {
	if c.ReviewDurationDays > 0 {
		return c.ReviewDurationDays
	}
	return DefaultReviewDurationDays
}

// GetCategoryByCode retrieves a category by its code.
func GetCategoryByCode(db *gorm.DB, code string) (*Category, error) {
	var c Category
	if err := db.Where("code = ?", code).First(&c).Error; err != nil {
		return nil, fmt.Errorf("error getting category %q: %w", code, err)
	}
	return &c, nil
}
