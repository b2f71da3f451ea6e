package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/models"
)

func setupDocument(t *testing.T, db *gorm.DB) (*models.Document, *models.Metadata) {
	t.Helper()
	cat := testutil.CreateCategory(t, db, "FAC09001-FWF-000", "contractor_deliverable")

	doc := &models.Document{
		DocumentKey:  "FAC09001-FWF-000-HSE-REP-0004",
		CategoryID:   cat.ID,
		DocumentType: "contractor_deliverable",
	}
	require.NoError(t, db.Create(doc).Error)

	m := &models.Metadata{
		DocumentID:   &doc.ID,
		DocumentKey:  doc.DocumentKey,
		DocumentType: doc.DocumentType,
	}
	require.NoError(t, db.Create(m).Error)
	return doc, m
}

func appendN(t *testing.T, l *Ledger, doc *models.Document, m *models.Metadata, first, n int) []*models.Revision {
	t.Helper()
	ctx := context.Background()

	var revs []*models.Revision
	var previous *models.Revision
	for i := 0; i < n; i++ {
		rev := &models.Revision{}
		require.NoError(t, l.Append(ctx, doc.ID, previous, first, rev))

		var previousID *uint
		if previous != nil {
			previousID = &previous.ID
		}
		require.NoError(t, l.Repoint(ctx, m, doc, rev, previousID))
		revs = append(revs, rev)
		previous = rev
	}
	return revs
}

func TestLedger_AppendChain(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, m := setupDocument(t, db)
	l := New(db)

	revs := appendN(t, l, doc, m, 0, 4)
	for i, rev := range revs {
		assert.Equal(t, i, rev.Revision)
	}

	latest, err := l.Latest(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, revs[3].ID, latest.ID)
	assert.Equal(t, 3, doc.CurrentRevision)

	count, err := l.Count(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	assert.NoError(t, l.Verify(context.Background(), doc.ID, 0))
}

func TestLedger_AllIsLazyAndRestartable(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, m := setupDocument(t, db)
	l := New(db).WithPageSize(2)
	appendN(t, l, doc, m, 1, 5)

	collect := func() []int {
		var numbers []int
		for rev, err := range l.All(context.Background(), doc.ID) {
			require.NoError(t, err)
			numbers = append(numbers, rev.Revision)
		}
		return numbers
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, collect())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, collect(), "ranging again restarts from the first revision")

	var first []int
	for rev, err := range l.All(context.Background(), doc.ID) {
		require.NoError(t, err)
		first = append(first, rev.Revision)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, first)
}

func TestLedger_AllEmpty(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, _ := setupDocument(t, db)

	n := 0
	for range New(db).All(context.Background(), doc.ID) {
		n++
	}
	assert.Zero(t, n)
}

func TestLedger_LatestWithoutRevisions(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, _ := setupDocument(t, db)

	_, err := New(db).Latest(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNoRevisions)

	_, err = New(db).Highest(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNoRevisions)

	assert.ErrorIs(t, New(db).Verify(context.Background(), doc.ID, 0), ErrNoRevisions)
}

func TestLedger_AppendConflict(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, m := setupDocument(t, db)
	l := New(db)
	revs := appendN(t, l, doc, m, 0, 1)

	// Both writers read revision 0 as the latest.
	stale := revs[0]
	winner := &models.Revision{}
	require.NoError(t, l.Append(context.Background(), doc.ID, stale, 0, winner))

	loser := &models.Revision{}
	err := l.Append(context.Background(), doc.ID, stale, 0, loser)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLedger_RepointConflict(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, m := setupDocument(t, db)
	l := New(db)
	revs := appendN(t, l, doc, m, 0, 2)

	rev := &models.Revision{}
	require.NoError(t, l.Append(context.Background(), doc.ID, revs[1], 0, rev))

	// The pointer already moved from revision 0 to revision 1.
	err := l.Repoint(context.Background(), m, doc, rev, &revs[0].ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLedger_VerifyDetectsCorruption(t *testing.T) {
	db := testutil.SetupDB(t)
	doc, m := setupDocument(t, db)
	l := New(db)
	revs := appendN(t, l, doc, m, 0, 2)

	t.Run("wrong first number", func(t *testing.T) {
		assert.ErrorIs(t, l.Verify(context.Background(), doc.ID, 1), ErrCorrupt)
	})

	t.Run("stale latest pointer", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Metadata{}).
			Where("id = ?", m.ID).
			Update("latest_revision_id", revs[0].ID).Error)
		assert.ErrorIs(t, l.Verify(context.Background(), doc.ID, 0), ErrCorrupt)
	})
}
