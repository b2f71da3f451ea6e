// Package reviews runs the review of a revision: reviewers first, then the
// leader, then the approver.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/models"
)

var (
	ErrNotReviewable      = errors.New("document type is not reviewable")
	ErrAlreadyUnderReview = errors.New("revision is already under review")
	ErrAlreadyReviewed    = errors.New("revision was already reviewed")
	ErrNotUnderReview     = errors.New("revision is not under review")
	ErrNoLeader           = errors.New("revision has no review leader")
	ErrReviewClosed       = errors.New("review is already closed")
	ErrNotActive          = errors.New("review step is not active")
)

// State is the review state of a revision.
type State string

const (
	StateNotUnderReview State = "not_under_review"
	StateUnderReview    State = "under_review"
	StateReviewed       State = "reviewed"
)

// StateOf returns the review state of rev.
func StateOf(rev *models.Revision) State {
	switch {
	case rev.IsReviewed():
		return StateReviewed
	case rev.IsUnderReview():
		return StateUnderReview
	default:
		return StateNotUnderReview
	}
}

// IsOverdue reports whether rev is under review past its due date.
func IsOverdue(rev *models.Revision, now time.Time) bool {
	if !rev.IsUnderReview() || rev.ReviewDueDate == nil {
		return false
	}
	return clock.Date(now).After(*rev.ReviewDueDate)
}

// Config holds the dependencies of a Service.
type Config struct {
	DB     *gorm.DB
	Types  *doctype.Registry
	Bus    *events.Bus
	Clock  clock.Clock
	Logger hclog.Logger
}

// Service starts, advances and ends reviews. Each operation runs in one
// transaction; review_started and review_ended are dispatched after commit.
type Service struct {
	db     *gorm.DB
	types  *doctype.Registry
	bus    *events.Bus
	clock  clock.Clock
	logger hclog.Logger
}

// NewService returns a review service.
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Types == nil {
		cfg.Types = doctype.DefaultRegistry(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Logger)
	}
	return &Service{
		db:     cfg.DB,
		types:  cfg.Types,
		bus:    cfg.Bus,
		clock:  clock.Or(cfg.Clock),
		logger: cfg.Logger.Named("reviews"),
	}, nil
}

// StartReview opens the review of a revision. The start date is today and
// the due date is today plus the category review duration. One review is
// created per reviewer, then for the leader and the approver. Reviewers are
// active first; without reviewers the leader is.
func (s *Service) StartReview(ctx context.Context, revisionID uint) (*models.Revision, error) {
	var rev models.Revision
	err := s.transaction(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		doc, err := s.loadRevision(tx, revisionID, &rev)
		if err != nil {
			return err
		}

		typ, err := s.types.Get(doc.DocumentType)
		if err != nil {
			return err
		}
		if !typ.Reviewable() {
			return fmt.Errorf("%w: %s", ErrNotReviewable, typ.Name())
		}
		switch StateOf(&rev) {
		case StateUnderReview:
			return ErrAlreadyUnderReview
		case StateReviewed:
			return ErrAlreadyReviewed
		}
		if rev.Leader == "" {
			return ErrNoLeader
		}

		today := clock.Today(s.clock)
		due := today.AddDate(0, 0, doc.Category.ReviewDuration())

		// Only one concurrent start may succeed.
		res := tx.Model(&models.Revision{}).
			Where("id = ? AND review_start_date IS NULL", rev.ID).
			Updates(map[string]any{
				"review_start_date": today,
				"review_due_date":   due,
			})
		if res.Error != nil {
			return fmt.Errorf("error starting review of revision %d: %w", rev.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyUnderReview
		}
		rev.ReviewStartDate = &today
		rev.ReviewDueDate = &due

		reviews := buildReviews(&rev, today, due)
		if err := tx.Omit(clause.Associations).Create(&reviews).Error; err != nil {
			return fmt.Errorf("error creating reviews of revision %d: %w", rev.ID, err)
		}

		evt := events.New(events.ReviewStarted, typ.Name(), s.clock.Now())
		evt.Document = doc
		evt.Revision = &rev
		evt.Data = map[string]any{"reviews": reviews}
		return rec.Record(evt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review started",
		"document_key", rev.Document.DocumentKey,
		"revision", rev.Revision,
		"due_date", rev.ReviewDueDate.Format(doctype.DateLayout),
	)
	return &rev, nil
}

func buildReviews(rev *models.Revision, start, due time.Time) []models.Review {
	newReview := func(reviewer string, role models.ReviewRole, status models.ReviewStatus) models.Review {
		return models.Review{
			RevisionID: rev.ID,
			DocumentID: rev.DocumentID,
			Reviewer:   reviewer,
			Role:       role,
			Status:     status,
			StartDate:  &start,
			DueDate:    &due,
		}
	}

	var reviews []models.Review
	seen := map[string]bool{rev.Leader: true, rev.Approver: true}
	for _, r := range rev.Reviewers {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		reviews = append(reviews, newReview(r, models.ReviewRoleReviewer, models.ReviewStatusProgress))
	}

	leaderStatus := models.ReviewStatusPending
	if len(reviews) == 0 {
		leaderStatus = models.ReviewStatusProgress
	}
	reviews = append(reviews, newReview(rev.Leader, models.ReviewRoleLeader, leaderStatus))

	if rev.Approver != "" {
		reviews = append(reviews, newReview(rev.Approver, models.ReviewRoleApprover, models.ReviewStatusPending))
	}
	return reviews
}

// CompleteReview closes one participant's review. Completing the last
// reviewer activates the leader, completing the leader activates the
// approver, and completing the final step ends the review.
func (s *Service) CompleteReview(ctx context.Context, reviewID uint, withComments bool) (*models.Review, error) {
	var review models.Review
	var ended bool
	err := s.transaction(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		if err := tx.First(&review, reviewID).Error; err != nil {
			return fmt.Errorf("error getting review %d: %w", reviewID, err)
		}
		if !review.Status.IsOpen() {
			return ErrReviewClosed
		}
		if review.Status != models.ReviewStatusProgress {
			return fmt.Errorf("%w: %s step of revision %d", ErrNotActive, review.Role, review.RevisionID)
		}

		today := clock.Today(s.clock)
		status := models.ReviewStatusReviewed
		if withComments {
			status = models.ReviewStatusCommented
		}
		review.Status = status
		review.ClosedOn = &today
		err := tx.Model(&review).Updates(map[string]any{
			"status":    review.Status,
			"closed_on": review.ClosedOn,
		}).Error
		if err != nil {
			return fmt.Errorf("error closing review %d: %w", review.ID, err)
		}

		reviews, err := models.GetReviewsByRevision(tx, review.RevisionID)
		if err != nil {
			return fmt.Errorf("error listing reviews of revision %d: %w", review.RevisionID, err)
		}
		next, done := nextStep(reviews)
		if done {
			ended = true
			_, err := s.endReview(tx, rec, review.RevisionID)
			return err
		}
		if next == "" {
			return nil
		}
		return tx.Model(&models.Review{}).
			Where("revision_id = ? AND role = ? AND status = ?", review.RevisionID, next, models.ReviewStatusPending).
			Update("status", models.ReviewStatusProgress).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review completed",
		"review", review.ID,
		"role", review.Role,
		"status", review.Status,
		"review_ended", ended,
	)
	return &review, nil
}

// nextStep returns the role to activate once the open step is finished, or
// done when no step remains. An empty role means the current step is still
// open.
func nextStep(reviews []models.Review) (next models.ReviewRole, done bool) {
	open := map[models.ReviewRole]int{}
	progress := map[models.ReviewRole]int{}
	for _, r := range reviews {
		if r.Status.IsOpen() {
			open[r.Role]++
		}
		if r.Status == models.ReviewStatusProgress {
			progress[r.Role]++
		}
	}

	for _, role := range []models.ReviewRole{models.ReviewRoleReviewer, models.ReviewRoleLeader, models.ReviewRoleApprover} {
		if progress[role] > 0 {
			return "", false
		}
		if open[role] > 0 {
			return role, false
		}
	}
	return "", true
}

// CurrentStep returns the role of the active step of an open review.
func (s *Service) CurrentStep(ctx context.Context, revisionID uint) (models.ReviewRole, error) {
	reviews, err := models.GetReviewsByRevision(s.db.WithContext(ctx), revisionID)
	if err != nil {
		return "", fmt.Errorf("error listing reviews of revision %d: %w", revisionID, err)
	}
	for _, r := range reviews {
		if r.Status == models.ReviewStatusProgress {
			return r.Role, nil
		}
	}
	return "", ErrNotUnderReview
}

// EndReview closes the review of a revision. Reviews still open become
// not_reviewed.
func (s *Service) EndReview(ctx context.Context, revisionID uint) (*models.Revision, error) {
	var rev *models.Revision
	err := s.transaction(ctx, func(tx *gorm.DB, rec *events.Recorder) error {
		var err error
		rev, err = s.endReview(tx, rec, revisionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review ended",
		"document_key", rev.Document.DocumentKey,
		"revision", rev.Revision,
	)
	return rev, nil
}

func (s *Service) endReview(tx *gorm.DB, rec *events.Recorder, revisionID uint) (*models.Revision, error) {
	var rev models.Revision
	doc, err := s.loadRevision(tx, revisionID, &rev)
	if err != nil {
		return nil, err
	}
	if !rev.IsUnderReview() {
		return nil, ErrNotUnderReview
	}

	today := clock.Today(s.clock)
	res := tx.Model(&models.Revision{}).
		Where("id = ? AND review_end_date IS NULL", rev.ID).
		Update("review_end_date", today)
	if res.Error != nil {
		return nil, fmt.Errorf("error ending review of revision %d: %w", rev.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotUnderReview
	}
	rev.ReviewEndDate = &today

	err = tx.Model(&models.Review{}).
		Where("revision_id = ? AND status IN ?", rev.ID, []models.ReviewStatus{models.ReviewStatusPending, models.ReviewStatusProgress}).
		Updates(map[string]any{
			"status":    models.ReviewStatusNotReviewed,
			"closed_on": today,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("error closing reviews of revision %d: %w", rev.ID, err)
	}

	evt := events.New(events.ReviewEnded, doc.DocumentType, s.clock.Now())
	evt.Document = doc
	evt.Revision = &rev
	if err := rec.Record(evt); err != nil {
		return nil, err
	}
	return &rev, nil
}

// CancelReview deletes the reviews of a revision under review and clears its
// review dates.
func (s *Service) CancelReview(ctx context.Context, revisionID uint) error {
	return s.transaction(ctx, func(tx *gorm.DB, _ *events.Recorder) error {
		var rev models.Revision
		if _, err := s.loadRevision(tx, revisionID, &rev); err != nil {
			return err
		}
		if !rev.IsUnderReview() {
			return ErrNotUnderReview
		}

		if err := tx.Where("revision_id = ?", rev.ID).Delete(&models.Review{}).Error; err != nil {
			return fmt.Errorf("error deleting reviews of revision %d: %w", rev.ID, err)
		}
		return tx.Model(&rev).Updates(map[string]any{
			"review_start_date": nil,
			"review_due_date":   nil,
			"review_end_date":   nil,
		}).Error
	})
}

// loadRevision loads a revision with its document and category.
func (s *Service) loadRevision(tx *gorm.DB, revisionID uint, rev *models.Revision) (*models.Document, error) {
	err := tx.
		Preload("Document.Category").
		First(rev, revisionID).Error
	if err != nil {
		return nil, fmt.Errorf("error getting revision %d: %w", revisionID, err)
	}
	if rev.Document == nil || rev.Document.Category == nil {
		return nil, fmt.Errorf("revision %d has no document category", revisionID)
	}
	return rev.Document, nil
}

// transaction runs fn and dispatches the recorded events once it commits.
func (s *Service) transaction(ctx context.Context, fn func(tx *gorm.DB, rec *events.Recorder) error) error {
	var recorded []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := events.NewRecorder(tx)
		if err := fn(tx, rec); err != nil {
			return err
		}
		recorded = rec.Events()
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.bus.DispatchAll(ctx, recorded); err != nil {
		s.logger.Warn("review event handlers failed", "error", err)
	}
	return nil
}
