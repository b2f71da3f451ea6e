package backends

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/phase-edms/phase/pkg/notifications"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Retries is the number of additional attempts on retryable backend
	// errors (default: 2, negative disables retries).
	Retries int

	// RetryInitialInterval is the first retry delay (default: 200ms).
	RetryInitialInterval time.Duration

	Logger hclog.Logger
}

// Dispatcher hands notifications to the registered backends synchronously.
// It is used when no broker is configured, and by the notification consumer
// for messages read from the topic.
type Dispatcher struct {
	registry *Registry
	config   DispatcherConfig
	logger   hclog.Logger
}

// NewDispatcher returns a dispatcher over the backends of registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		registry: registry,
		config:   cfg,
		logger:   cfg.Logger.Named("notifications"),
	}
}

// Send delivers msg to every backend supporting one of msg.Backends. Each
// backend gets the message at most once. Failures are collected in a
// *MultiBackendError. It implements notifications.Sender.
func (d *Dispatcher) Send(ctx context.Context, msg *notifications.NotificationMessage) error {
	var failed []*BackendError
	handled := 0

	for _, backend := range d.registry.GetAll() {
		if !Routes(backend, msg) {
			continue
		}
		handled++

		if err := d.handle(ctx, backend, msg); err != nil {
			var backendErr *BackendError
			if !errors.As(err, &backendErr) {
				backendErr = NewBackendError(backend.Name(), "send", false, err)
			}
			d.logger.Warn("backend failed",
				"backend", backend.Name(),
				"id", msg.ID,
				"error", err,
			)
			failed = append(failed, backendErr)
			continue
		}
		d.logger.Debug("backend processed message", "backend", backend.Name(), "id", msg.ID)
	}

	if handled == 0 {
		d.logger.Warn("no backend for message", "id", msg.ID, "backends", msg.Backends)
	}
	if len(failed) > 0 {
		return &MultiBackendError{Errors: failed}
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, backend Backend, msg *notifications.NotificationMessage) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.RetryInitialInterval

	return backoff.Retry(func() error {
		err := backend.Handle(ctx, msg)
		var backendErr *BackendError
		if err != nil && (!errors.As(err, &backendErr) || !backendErr.IsRetryable()) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.config.Retries)), ctx))
}

// Routes reports whether backend should process msg.
func Routes(backend Backend, msg *notifications.NotificationMessage) bool {
	for _, target := range msg.Backends {
		if backend.SupportsBackend(target) {
			return true
		}
	}
	return false
}
