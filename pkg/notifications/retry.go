package notifications

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 5)
	MaxRetries int

	// InitialBackoff is the initial backoff duration (default: 1 minute)
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 2 hours)
	MaxBackoff time.Duration

	// BackoffMultiplier is the backoff multiplier for exponential backoff (default: 2)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    1 * time.Minute,
		MaxBackoff:        2 * time.Hour,
		BackoffMultiplier: 2.0,
	}
}

// DeadLetterSender receives notifications that exhausted their retries.
type DeadLetterSender interface {
	PublishToDLQ(ctx context.Context, msg *NotificationMessage, failureReason string) error
}

// RetryHandler handles retry logic for failed notifications
type RetryHandler struct {
	config RetryConfig
	retry  Sender
	dlq    DeadLetterSender
	now    func() time.Time
}

// NewRetryHandler creates a new retry handler. Retries are re-sent through
// retry; dlq may be nil.
func NewRetryHandler(config RetryConfig, retry Sender, dlq DeadLetterSender) *RetryHandler {
	return &RetryHandler{
		config: config,
		retry:  retry,
		dlq:    dlq,
		now:    time.Now,
	}
}

// CalculateNextRetry returns
// min(initialBackoff * multiplier^retryCount, maxBackoff).
func (h *RetryHandler) CalculateNextRetry(retryCount int) time.Duration {
	backoff := float64(h.config.InitialBackoff)
	for i := 0; i < retryCount; i++ {
		backoff *= h.config.BackoffMultiplier
	}

	duration := time.Duration(backoff)
	if duration > h.config.MaxBackoff {
		duration = h.config.MaxBackoff
	}
	return duration
}

// ShouldRetry determines if a message should be retried
func (h *RetryHandler) ShouldRetry(msg *NotificationMessage) bool {
	return msg.RetryCount < h.config.MaxRetries
}

// PrepareRetry returns a copy of msg with updated retry metadata
func (h *RetryHandler) PrepareRetry(msg *NotificationMessage, err error, failedBackends []string) *NotificationMessage {
	now := h.now()
	retryCount := msg.RetryCount + 1

	retryMsg := *msg
	retryMsg.RetryCount = retryCount
	retryMsg.LastError = err.Error()
	retryMsg.LastRetryAt = now
	retryMsg.NextRetryAt = now.Add(h.CalculateNextRetry(retryCount))
	retryMsg.FailedBackends = failedBackends
	// Only the failed backends are retried.
	if len(failedBackends) > 0 {
		retryMsg.Backends = failedBackends
	}

	return &retryMsg
}

// HandleFailure either re-sends msg for another attempt or, when retries are
// exhausted, publishes it to the dead letter queue.
func (h *RetryHandler) HandleFailure(ctx context.Context, msg *NotificationMessage, err error, failedBackends []string) error {
	if h.ShouldRetry(msg) {
		// Consumers hold the retried message until NextRetryAt.
		if err := h.retry.Send(ctx, h.PrepareRetry(msg, err, failedBackends)); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		return nil
	}

	if h.dlq == nil {
		return fmt.Errorf("message exceeded max retries (%d): %s", h.config.MaxRetries, msg.ID)
	}
	failureReason := fmt.Sprintf("Exceeded max retries (%d). Last error: %s", msg.RetryCount, err)
	return h.dlq.PublishToDLQ(ctx, msg, failureReason)
}
