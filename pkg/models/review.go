package models

import (
	"time"

	"gorm.io/gorm"
)

// ReviewRole is the step a participant takes part in.
type ReviewRole string

const (
	ReviewRoleReviewer ReviewRole = "reviewer"
	ReviewRoleLeader   ReviewRole = "leader"
	ReviewRoleApprover ReviewRole = "approver"
)

// ReviewStatus is the state of a single participant's review.
type ReviewStatus string

const (
	// ReviewStatusPending waits for a previous step to complete.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusProgress is the active step.
	ReviewStatusProgress    ReviewStatus = "progress"
	ReviewStatusReviewed    ReviewStatus = "reviewed"
	ReviewStatusCommented   ReviewStatus = "commented"
	ReviewStatusNotReviewed ReviewStatus = "not_reviewed"
)

// IsOpen reports whether the participant still has to act.
func (s ReviewStatus) IsOpen() bool {
	return s == ReviewStatusPending || s == ReviewStatusProgress
}

// Review tracks one participant's part in the review of a revision.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	RevisionID uint      `gorm:"not null;index:idx_reviews_revision" json:"revisionId"`
	Revision   *Revision `json:"-"`
	DocumentID uint      `gorm:"not null;index:idx_reviews_document" json:"documentId"`

	Reviewer string       `gorm:"type:varchar(250);not null" json:"reviewer"`
	Role     ReviewRole   `gorm:"type:varchar(20);not null" json:"role"`
	Status   ReviewStatus `gorm:"type:varchar(20);not null" json:"status"`

	StartDate *time.Time `json:"startDate,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	ClosedOn  *time.Time `json:"closedOn,omitempty"`
}

// TableName specifies the table name.
func (Review) TableName() string {
	return "reviews"
}

// GetReviewsByRevision retrieves the reviews of a revision in creation order.
func GetReviewsByRevision(db *gorm.DB, revisionID uint) ([]Review, error) {
	var reviews []Review
	err := db.
		Where("revision_id = ?", revisionID).
		Order("id ASC").
		Find(&reviews).Error
	return reviews, err
}
