package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/phase-edms/phase/pkg/notifications"
)

// Backend delivers resolved notifications: review reminders, review
// starts and transmittal notices.
type Backend interface {
	// Name is the routing key messages use in their Backends list.
	Name() string

	Handle(ctx context.Context, msg *notifications.NotificationMessage) error

	// SupportsBackend reports whether the backend handles messages routed
	// to backend.
	SupportsBackend(backend string) bool
}

// BackendError is a failed delivery. Retryable failures (an unreachable
// SMTP server) are attempted again; permanent ones (a message without
// recipients) are dead-lettered.
type BackendError struct {
	Backend   string
	Operation string
	Retryable bool
	Err       error
}

// NewBackendError returns a BackendError for backend.
func NewBackendError(backend, operation string, retryable bool, err error) *BackendError {
	return &BackendError{
		Backend:   backend,
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}

func (e *BackendError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s: %s failed (%s): %v", e.Backend, e.Operation, kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) IsRetryable() bool {
	return e.Retryable
}

// MultiBackendError collects the failures of one dispatch.
type MultiBackendError struct {
	Errors []*BackendError
}

func (e *MultiBackendError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no backend errors"
	case 1:
		return e.Errors[0].Error()
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d backends failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// HasRetryableErrors reports whether at least one backend may succeed on
// another attempt.
func (e *MultiBackendError) HasRetryableErrors() bool {
	return len(e.RetryableBackends()) > 0
}

// RetryableBackends returns the names of the backends whose failure is
// retryable. A retried message is routed to these only, so a backend that
// failed permanently does not hold up the others.
func (e *MultiBackendError) RetryableBackends() []string {
	var names []string
	for _, err := range e.Errors {
		if err.Retryable {
			names = append(names, err.Backend)
		}
	}
	return names
}
