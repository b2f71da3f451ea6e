package reviews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
)

type fixture struct {
	db       *gorm.DB
	bus      *events.Bus
	clock    *testutil.StubClock
	svc      *Service
	category *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupDB(t)
	bus := events.NewBus(nil)
	clk := testutil.FixedClock()
	svc, err := NewService(Config{DB: db, Bus: bus, Clock: clk})
	require.NoError(t, err)

	return &fixture{
		db:       db,
		bus:      bus,
		clock:    clk,
		svc:      svc,
		category: testutil.CreateCategory(t, db, "FAC09001-FWF-000", doctype.ContractorDeliverable),
	}
}

func (f *fixture) revision(t *testing.T, key string, rev models.Revision) *models.Revision {
	t.Helper()
	_, revs := testutil.CreateDocument(t, f.db, f.category, key, 0, rev)
	return revs[0]
}

func (f *fixture) reviews(t *testing.T, revisionID uint) map[string]models.Review {
	t.Helper()
	reviews, err := models.GetReviewsByRevision(f.db, revisionID)
	require.NoError(t, err)
	byReviewer := map[string]models.Review{}
	for _, r := range reviews {
		byReviewer[r.Reviewer] = r
	}
	return byReviewer
}

func TestStartReview(t *testing.T) {
	f := newFixture(t)
	rev := f.revision(t, "DOC-1", models.Revision{
		Leader:    "leader@phase.fr",
		Approver:  "approver@phase.fr",
		Reviewers: []string{"r1@phase.fr", "r2@phase.fr", "leader@phase.fr"},
	})

	var started []events.Event
	f.bus.Subscribe(events.ReviewStarted, "test", func(_ context.Context, evt events.Event) error {
		started = append(started, evt)
		return nil
	})

	got, err := f.svc.StartReview(context.Background(), rev.ID)
	require.NoError(t, err)

	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, got.ReviewStartDate)
	assert.Equal(t, today, *got.ReviewStartDate)
	assert.Equal(t, today.AddDate(0, 0, models.DefaultReviewDurationDays), *got.ReviewDueDate)
	assert.Equal(t, StateUnderReview, StateOf(got))

	reviews := f.reviews(t, rev.ID)
	require.Len(t, reviews, 4)
	assert.Equal(t, models.ReviewStatusProgress, reviews["r1@phase.fr"].Status)
	assert.Equal(t, models.ReviewStatusProgress, reviews["r2@phase.fr"].Status)
	assert.Equal(t, models.ReviewRoleLeader, reviews["leader@phase.fr"].Role)
	assert.Equal(t, models.ReviewStatusPending, reviews["leader@phase.fr"].Status)
	assert.Equal(t, models.ReviewStatusPending, reviews["approver@phase.fr"].Status)

	step, err := f.svc.CurrentStep(context.Background(), rev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRoleReviewer, step)

	require.Len(t, started, 1)
	assert.Equal(t, doctype.ContractorDeliverable, started[0].Sender)
}

func TestStartReview_CategoryDuration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.category).Update("review_duration_days", 5).Error)
	rev := f.revision(t, "DOC-1", models.Revision{Leader: "leader@phase.fr"})

	got, err := f.svc.StartReview(context.Background(), rev.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), *got.ReviewDueDate)

	reviews := f.reviews(t, rev.ID)
	require.Len(t, reviews, 1)
	assert.Equal(t, models.ReviewStatusProgress, reviews["leader@phase.fr"].Status)
}

func TestStartReview_Errors(t *testing.T) {
	f := newFixture(t)

	noLeader := f.revision(t, "DOC-1", models.Revision{})
	_, err := f.svc.StartReview(context.Background(), noLeader.ID)
	assert.ErrorIs(t, err, ErrNoLeader)

	rev := f.revision(t, "DOC-2", models.Revision{Leader: "leader@phase.fr"})
	_, err = f.svc.StartReview(context.Background(), rev.ID)
	require.NoError(t, err)
	_, err = f.svc.StartReview(context.Background(), rev.ID)
	assert.ErrorIs(t, err, ErrAlreadyUnderReview)

	_, err = f.svc.EndReview(context.Background(), rev.ID)
	require.NoError(t, err)
	_, err = f.svc.StartReview(context.Background(), rev.ID)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	correspondence := testutil.CreateCategory(t, f.db, "COR", doctype.Correspondence)
	_, revs := testutil.CreateDocument(t, f.db, correspondence, "COR-1", 1, models.Revision{Leader: "leader@phase.fr"})
	_, err = f.svc.StartReview(context.Background(), revs[0].ID)
	assert.ErrorIs(t, err, ErrNotReviewable)

	count := int64(0)
	require.NoError(t, f.db.Model(&models.Review{}).Where("revision_id = ?", revs[0].ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCompleteReview_Steps(t *testing.T) {
	f := newFixture(t)
	rev := f.revision(t, "DOC-1", models.Revision{
		Leader:    "leader@phase.fr",
		Approver:  "approver@phase.fr",
		Reviewers: []string{"r1@phase.fr", "r2@phase.fr"},
	})
	ctx := context.Background()

	var ended int
	f.bus.Subscribe(events.ReviewEnded, "test", func(context.Context, events.Event) error {
		ended++
		return nil
	})

	_, err := f.svc.StartReview(ctx, rev.ID)
	require.NoError(t, err)
	reviews := f.reviews(t, rev.ID)

	_, err = f.svc.CompleteReview(ctx, reviews["leader@phase.fr"].ID, false)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = f.svc.CompleteReview(ctx, reviews["r1@phase.fr"].ID, true)
	require.NoError(t, err)
	step, err := f.svc.CurrentStep(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRoleReviewer, step)

	_, err = f.svc.CompleteReview(ctx, reviews["r1@phase.fr"].ID, false)
	assert.ErrorIs(t, err, ErrReviewClosed)

	f.clock.AdvanceDays(2)
	_, err = f.svc.CompleteReview(ctx, reviews["r2@phase.fr"].ID, false)
	require.NoError(t, err)
	step, err = f.svc.CurrentStep(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRoleLeader, step)

	_, err = f.svc.CompleteReview(ctx, reviews["leader@phase.fr"].ID, false)
	require.NoError(t, err)
	step, err = f.svc.CurrentStep(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRoleApprover, step)

	_, err = f.svc.CompleteReview(ctx, reviews["approver@phase.fr"].ID, false)
	require.NoError(t, err)

	_, err = f.svc.CurrentStep(ctx, rev.ID)
	assert.ErrorIs(t, err, ErrNotUnderReview)

	reloaded, err := models.GetRevision(f.db, rev.DocumentID, rev.Revision)
	require.NoError(t, err)
	assert.Equal(t, StateReviewed, StateOf(reloaded))
	assert.Equal(t, 1, ended)

	final := f.reviews(t, rev.ID)
	assert.Equal(t, models.ReviewStatusCommented, final["r1@phase.fr"].Status)
	assert.Equal(t, models.ReviewStatusReviewed, final["r2@phase.fr"].Status)
	assert.Equal(t, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), final["r2@phase.fr"].ClosedOn.UTC())
}

func TestEndReview_ClosesOpenReviews(t *testing.T) {
	f := newFixture(t)
	rev := f.revision(t, "DOC-1", models.Revision{
		Leader:    "leader@phase.fr",
		Reviewers: []string{"r1@phase.fr"},
	})
	ctx := context.Background()

	_, err := f.svc.EndReview(ctx, rev.ID)
	assert.ErrorIs(t, err, ErrNotUnderReview)

	_, err = f.svc.StartReview(ctx, rev.ID)
	require.NoError(t, err)
	got, err := f.svc.EndReview(ctx, rev.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReviewed())

	for _, r := range f.reviews(t, rev.ID) {
		assert.Equal(t, models.ReviewStatusNotReviewed, r.Status)
		assert.NotNil(t, r.ClosedOn)
	}

	_, err = f.svc.EndReview(ctx, rev.ID)
	assert.ErrorIs(t, err, ErrNotUnderReview)
}

func TestCancelReview(t *testing.T) {
	f := newFixture(t)
	rev := f.revision(t, "DOC-1", models.Revision{Leader: "leader@phase.fr"})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.CancelReview(ctx, rev.ID), ErrNotUnderReview)

	_, err := f.svc.StartReview(ctx, rev.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelReview(ctx, rev.ID))

	assert.Empty(t, f.reviews(t, rev.ID))
	reloaded, err := models.GetRevision(f.db, rev.DocumentID, rev.Revision)
	require.NoError(t, err)
	assert.Equal(t, StateNotUnderReview, StateOf(reloaded))
	assert.Nil(t, reloaded.ReviewDueDate)

	_, err = f.svc.StartReview(ctx, rev.ID)
	assert.NoError(t, err)
}

func TestIsOverdue(t *testing.T) {
	due := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)
	start := due.AddDate(0, 0, -13)
	end := due

	underReview := &models.Revision{ReviewStartDate: &start, ReviewDueDate: &due}
	reviewed := &models.Revision{ReviewStartDate: &start, ReviewDueDate: &due, ReviewEndDate: &end}

	assert.False(t, IsOverdue(underReview, due.Add(23*time.Hour)))
	assert.True(t, IsOverdue(underReview, due.AddDate(0, 0, 1)))
	assert.False(t, IsOverdue(reviewed, due.AddDate(0, 0, 10)))
	assert.False(t, IsOverdue(&models.Revision{}, due))
}
