package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TransmittalDirection distinguishes received packages from issued ones.
type TransmittalDirection string

const (
	TransmittalIncoming TransmittalDirection = "incoming"
	TransmittalOutgoing TransmittalDirection = "outgoing"
)

// TransmittalStatus is the processing state of a transmittal.
type TransmittalStatus string

const (
	TransmittalStatusNew        TransmittalStatus = "new"
	TransmittalStatusInvalid    TransmittalStatus = "invalid"
	TransmittalStatusProcessing TransmittalStatus = "processing"
	TransmittalStatusDone       TransmittalStatus = "done"
	TransmittalStatusAccepted   TransmittalStatus = "accepted"
	TransmittalStatusRejected   TransmittalStatus = "rejected"
)

// Transmittal is a package of document revisions exchanged between two
// parties of a contract.
type Transmittal struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	TransmittalKey string               `gorm:"type:varchar(250);not null;uniqueIndex" json:"transmittalKey"`
	Direction      TransmittalDirection `gorm:"type:varchar(20);not null" json:"direction"`
	CategoryID     uint                 `gorm:"not null;index:idx_transmittals_category" json:"categoryId"`
	Category       *Category            `json:"-"`

	ContractNumber   string `gorm:"type:varchar(50);not null" json:"contractNumber"`
	Originator       string `gorm:"type:varchar(50);not null" json:"originator"`
	Recipient        string `gorm:"type:varchar(50);not null" json:"recipient"`
	SequentialNumber int    `gorm:"not null" json:"sequentialNumber"`

	TransmittalDate   time.Time         `gorm:"not null" json:"transmittalDate"`
	AckOfReceiptDate  *time.Time        `json:"ackOfReceiptDate,omitempty"`
	Status            TransmittalStatus `gorm:"type:varchar(20);not null;index:idx_transmittals_status" json:"status"`
	StatusDescription string            `gorm:"type:text" json:"statusDescription,omitempty"`

	// Storage locations used while processing incoming packages.
	TobecheckedDir string `gorm:"type:varchar(1024)" json:"tobecheckedDir,omitempty"`
	AcceptedDir    string `gorm:"type:varchar(1024)" json:"acceptedDir,omitempty"`
	RejectedDir    string `gorm:"type:varchar(1024)" json:"rejectedDir,omitempty"`
	// OutgoingDir is where issued packages are written.
	OutgoingDir string `gorm:"type:varchar(1024)" json:"outgoingDir,omitempty"`

	Revisions []TransmittalRevision `json:"revisions,omitempty"`
}

// TableName specifies the table name.
func (Transmittal) TableName() string {
	return "transmittals"
}

// TransmittalRevision is an immutable snapshot of a document revision as
// included in a transmittal.
type TransmittalRevision struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	TransmittalID uint `gorm:"not null;uniqueIndex:idx_transmittal_revisions_document" json:"transmittalId"`
	DocumentID    uint `gorm:"not null;uniqueIndex:idx_transmittal_revisions_document" json:"documentId"`
	RevisionID    uint `gorm:"not null" json:"revisionId"`

	DocumentKey string     `gorm:"type:varchar(250);not null" json:"documentKey"`
	Title       string     `gorm:"type:text" json:"title"`
	Revision    int        `gorm:"not null" json:"revision"`
	Status      string     `gorm:"type:varchar(20)" json:"status,omitempty"`
	NativeFile  string     `gorm:"type:varchar(1024)" json:"nativeFile,omitempty"`
	PDFFile     string     `gorm:"column:pdf_file;type:varchar(1024)" json:"pdfFile,omitempty"`
	RevisionAt  *time.Time `json:"revisionDate,omitempty"`

	// Accepted is set while processing incoming transmittals.
	Accepted *bool  `json:"accepted,omitempty"`
	Comments string `gorm:"type:text" json:"comments,omitempty"`

	// Fields holds the metadata and revision fields at snapshot time.
	Fields JSON `gorm:"type:jsonb" json:"fields,omitempty"`
}

// TableName specifies the table name.
func (TransmittalRevision) TableName() string {
	return "transmittal_revisions"
}

// GetTransmittalByKey retrieves a transmittal with its revisions.
func GetTransmittalByKey(db *gorm.DB, key string) (*Transmittal, error) {
	var t Transmittal
	if err := db.
		Preload("Revisions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("transmittal_key = ?", key).
		First(&t).Error; err != nil {
		return nil, fmt.Errorf("error getting transmittal %q: %w", key, err)
	}
	return &t, nil
}

// NextTransmittalSequence returns the next sequential number for the
// contract, originator and recipient triple.
func NextTransmittalSequence(db *gorm.DB, contract, originator, recipient string) (int, error) {
	var max int
	err := db.Model(&Transmittal{}).
		Select("COALESCE(MAX(sequential_number), 0)").
		Where("contract_number = ? AND originator = ? AND recipient = ?",
			contract, originator, recipient).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
