package backends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phase-edms/phase/pkg/notifications"
)

// TestBackend records the notifications it receives and can inject
// failures. It stands in for the mail backend in tests and local runs.
type TestBackend struct {
	mu       sync.RWMutex
	config   TestBackendConfig
	messages []TestBackendMessage
	handled  int
}

// TestBackendConfig configures the test backend behavior
type TestBackendConfig struct {
	FailureMode FailureMode

	// FailFirst is the number of messages that fail in FailureModeFirstNFail
	FailFirst int

	// FailureMessage is the error message to return
	FailureMessage string

	// RecordMessages enables recording of all processed messages
	RecordMessages bool
}

// FailureMode defines how the test backend should behave
type FailureMode string

const (
	// FailureModeNone processes all messages successfully
	FailureModeNone FailureMode = "none"

	// FailureModeAlways always fails with a retryable error
	FailureModeAlways FailureMode = "always"

	// FailureModePermanent always fails with a permanent error
	FailureModePermanent FailureMode = "permanent"

	// FailureModeFirstNFail fails the first FailFirst messages, then succeeds
	FailureModeFirstNFail FailureMode = "first_n_fail"
)

// TestBackendMessage records a processed message for verification
type TestBackendMessage struct {
	Message   *notifications.NotificationMessage
	Timestamp time.Time
	Success   bool
	Error     error
}

// NewTestBackend creates a new test backend
func NewTestBackend(config TestBackendConfig) *TestBackend {
	if config.FailureMode == "" {
		config.FailureMode = FailureModeNone
	}
	return &TestBackend{config: config}
}

// Name returns the backend name
func (b *TestBackend) Name() string {
	return "test"
}

// SupportsBackend accepts the test backend and the mail backend, so
// messages routed to mail are captured.
func (b *TestBackend) SupportsBackend(backend string) bool {
	return backend == "test" || backend == "mail" || backend == "email"
}

// Handle processes a notification message according to the failure mode
func (b *TestBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.handled
	b.handled++

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = NewBackendError("test", "send", true, ctxErr)
	} else {
		err = b.failure(n)
	}

	if b.config.RecordMessages {
		b.messages = append(b.messages, TestBackendMessage{
			Message:   msg,
			Timestamp: time.Now(),
			Success:   err == nil,
			Error:     err,
		})
	}
	return err
}

func (b *TestBackend) failure(n int) error {
	errMsg := b.config.FailureMessage

	switch b.config.FailureMode {
	case FailureModeNone:
		return nil
	case FailureModeAlways:
		if errMsg == "" {
			errMsg = "simulated retryable failure"
		}
		return NewBackendError("test", "send", true, errors.New(errMsg))
	case FailureModePermanent:
		if errMsg == "" {
			errMsg = "simulated permanent failure"
		}
		return NewBackendError("test", "send", false, errors.New(errMsg))
	case FailureModeFirstNFail:
		if n < b.config.FailFirst {
			return NewBackendError("test", "send", true,
				fmt.Errorf("simulated failure %d/%d", n+1, b.config.FailFirst))
		}
		return nil
	default:
		return NewBackendError("test", "send", false,
			fmt.Errorf("unknown failure mode: %s", b.config.FailureMode))
	}
}

// GetMessages returns a copy of the recorded messages
func (b *TestBackend) GetMessages() []TestBackendMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	messages := make([]TestBackendMessage, len(b.messages))
	copy(messages, b.messages)
	return messages
}

// GetMessageCount returns the number of recorded messages
func (b *TestBackend) GetMessageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// GetSuccessCount returns the number of successfully processed messages
func (b *TestBackend) GetSuccessCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countSuccess()
}

// GetFailureCount returns the number of failed messages
func (b *TestBackend) GetFailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages) - b.countSuccess()
}

func (b *TestBackend) countSuccess() int {
	count := 0
	for _, msg := range b.messages {
		if msg.Success {
			count++
		}
	}
	return count
}

// Outbox returns the successfully delivered messages, the way a mail
// outbox would hold them.
func (b *TestBackend) Outbox() []*notifications.NotificationMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*notifications.NotificationMessage
	for _, m := range b.messages {
		if m.Success {
			out = append(out, m.Message)
		}
	}
	return out
}

// Reset clears all recorded messages and counters
func (b *TestBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	b.handled = 0
}

// SetFailureMode dynamically changes the failure mode
func (b *TestBackend) SetFailureMode(mode FailureMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.FailureMode = mode
}
