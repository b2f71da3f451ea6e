package exports

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/models"
)

// Worker processes started exports one at a time.
type Worker struct {
	svc      *Service
	interval time.Duration
}

// NewWorker returns a worker polling every interval.
func NewWorker(svc *Service, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{svc: svc, interval: interval}
}

// ProcessNext processes the oldest started export. It reports false when
// nothing was waiting.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	e, err := models.GetNextExport(w.svc.db.WithContext(ctx), models.ExportStatusProcessing)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, w.svc.Process(ctx, e)
}

// Drain processes started exports until none is left and returns how many
// were handled. Failed exports count and do not stop the drain; their
// errors are joined in the result.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	var (
		n    int
		errs error
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, multierror.Append(errs, err).ErrorOrNil()
		}
		ok, err := w.ProcessNext(ctx)
		if !ok {
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			return n, errs
		}
		n++
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
}

// Run drains the queue every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.svc.logger.Info("export worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.svc.logger.Error("error processing exports", "error", err)
		}
		select {
		case <-ctx.Done():
			w.svc.logger.Info("export worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
