package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/models"
)

func TestCategory_ReviewDuration(t *testing.T) {
	assert.Equal(t, models.DefaultReviewDurationDays, (&models.Category{}).ReviewDuration())
	assert.Equal(t, 5, (&models.Category{ReviewDurationDays: 5}).ReviewDuration())
}

func TestDocument_KeyIsImmutable(t *testing.T) {
	db := testutil.SetupDB(t)
	cat := testutil.CreateCategory(t, db, "FAC09001-FWF-000", "contractor_deliverable")

	doc := &models.Document{
		DocumentKey:  "FAC09001-FWF-000-HSE-REP-0004",
		CategoryID:   cat.ID,
		DocumentType: "contractor_deliverable",
	}
	require.NoError(t, db.Create(doc).Error)

	err := db.Model(doc).Updates(map[string]any{"document_key": "OTHER"}).Error
	assert.ErrorIs(t, err, models.ErrDocumentKeyImmutable)

	err = db.Model(doc).Updates(map[string]any{"title": "Renamed"}).Error
	assert.NoError(t, err)
}

func TestDocument_UniqueKeyPerCategory(t *testing.T) {
	db := testutil.SetupDB(t)
	cat := testutil.CreateCategory(t, db, "FAC09001-FWF-000", "contractor_deliverable")
	other := testutil.CreateCategory(t, db, "FAC09001-FWF-001", "contractor_deliverable")

	require.NoError(t, db.Create(&models.Document{
		DocumentKey: "KEY-1", CategoryID: cat.ID, DocumentType: "contractor_deliverable",
	}).Error)

	err := db.Create(&models.Document{
		DocumentKey: "KEY-1", CategoryID: cat.ID, DocumentType: "contractor_deliverable",
	}).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	err = db.Create(&models.Document{
		DocumentKey: "KEY-1", CategoryID: other.ID, DocumentType: "contractor_deliverable",
	}).Error
	assert.NoError(t, err, "the same key is allowed in another category")
}

func TestRevision_Files(t *testing.T) {
	r := &models.Revision{NativeFile: "a.docx"}
	assert.Equal(t, []string{"a.docx"}, r.Files(true, true))
	assert.Empty(t, r.Files(false, true))

	r.PDFFile = "a.pdf"
	assert.Equal(t, []string{"a.docx", "a.pdf"}, r.Files(true, true))
	assert.Equal(t, []string{"a.pdf"}, r.Files(false, true))
}

func TestRevision_ReviewState(t *testing.T) {
	now := time.Now()
	r := &models.Revision{}
	assert.False(t, r.IsUnderReview())
	assert.False(t, r.IsReviewed())

	r.ReviewStartDate = &now
	assert.True(t, r.IsUnderReview())

	r.ReviewEndDate = &now
	assert.False(t, r.IsUnderReview())
	assert.True(t, r.IsReviewed())
}

func TestEventOutbox_BeforeCreate(t *testing.T) {
	db := testutil.SetupDB(t)

	t.Run("requires event name", func(t *testing.T) {
		err := db.Create(&models.EventOutbox{Sender: "metadata", Payload: map[string]any{}}).Error
		assert.Error(t, err)
	})

	t.Run("fills idempotent key and status", func(t *testing.T) {
		entry := &models.EventOutbox{
			EventName: "document_created",
			Sender:    "metadata",
			Payload:   map[string]any{"document_key": "A-1"},
		}
		require.NoError(t, db.Create(entry).Error)

		assert.Equal(t, models.OutboxStatusPending, entry.Status)
		assert.NotEmpty(t, entry.ContentHash)
		assert.Equal(t, "document_created:"+entry.ContentHash, entry.IdempotentKey)
	})

	t.Run("duplicate payload is rejected", func(t *testing.T) {
		err := db.Create(&models.EventOutbox{
			EventName: "document_created",
			Sender:    "metadata",
			Payload:   map[string]any{"document_key": "A-1"},
		}).Error
		assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
	})
}

func TestEventOutbox_MarkAsFailed(t *testing.T) {
	db := testutil.SetupDB(t)
	entry := &models.EventOutbox{
		EventName: "document_revised",
		Sender:    "revision",
		Payload:   map[string]any{"revision": 1},
	}
	require.NoError(t, db.Create(entry).Error)

	require.NoError(t, entry.MarkAsFailed(db, errors.New("broker down"), 2))
	assert.Equal(t, models.OutboxStatusPending, entry.Status)
	assert.Equal(t, 1, entry.PublishAttempts)

	require.NoError(t, entry.MarkAsFailed(db, errors.New("broker down"), 2))
	assert.Equal(t, models.OutboxStatusFailed, entry.Status)

	count, err := models.CountOutboxByStatus(db, models.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, entry.Retry(db))
	pending, err := models.FindPendingOutboxEntries(db, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExport_Filename(t *testing.T) {
	id := uuid.MustParse("0b4ed3b1-33b8-4f1b-9d8e-6f1b0a7f3a11")
	e := &models.Export{
		ID:         id,
		CreatedOn:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		FileFormat: "csv",
	}
	assert.Equal(t, "export_20240115_0b4ed3b1-33b8-4f1b-9d8e-6f1b0a7f3a11.csv", e.Filename())
}

func TestExport_BeforeCreate(t *testing.T) {
	db := testutil.SetupDB(t)
	cat := testutil.CreateCategory(t, db, "FAC09001-FWF-000", "contractor_deliverable")

	e := &models.Export{
		Owner:      "jdoe",
		CategoryID: cat.ID,
		Format:     "both",
		Revisions:  "latest",
		FileFormat: "zip",
	}
	require.NoError(t, db.Create(e).Error)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, models.ExportStatusNew, e.Status)

	next, err := models.GetNextExport(db, models.ExportStatusNew)
	require.NoError(t, err)
	assert.Equal(t, e.ID, next.ID)
}

func TestNextTransmittalSequence(t *testing.T) {
	db := testutil.SetupDB(t)
	cat := testutil.CreateCategory(t, db, "FAC09001-FWF-000", "contractor_deliverable")

	seq, err := models.NextTransmittalSequence(db, "FAC09001", "FWF", "CTR")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	require.NoError(t, db.Create(&models.Transmittal{
		TransmittalKey:   "FAC09001-FWF-CTR-TRS-00007",
		Direction:        models.TransmittalOutgoing,
		CategoryID:       cat.ID,
		ContractNumber:   "FAC09001",
		Originator:       "FWF",
		Recipient:        "CTR",
		SequentialNumber: 7,
		TransmittalDate:  time.Now(),
		Status:           models.TransmittalStatusNew,
	}).Error)

	seq, err = models.NextTransmittalSequence(db, "FAC09001", "FWF", "CTR")
	require.NoError(t, err)
	assert.Equal(t, 8, seq)

	seq, err = models.NextTransmittalSequence(db, "FAC09001", "FWF", "OTH")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestJSON(t *testing.T) {
	j, err := models.NewJSON(map[string]any{"a": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, j.Decode(&out))
	assert.Equal(t, 1, out["a"])

	var scanned models.JSON
	require.NoError(t, scanned.Scan([]byte(`{"b":true}`)))
	assert.Equal(t, `{"b":true}`, scanned.String())
	assert.Error(t, scanned.Scan([]byte(`{`)))
}
