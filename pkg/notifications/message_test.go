package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationMessageSerialization(t *testing.T) {
	msg := NotificationMessage{
		ID:        "test-123",
		Type:      NotificationTypeReviewStarted,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Recipients: []Recipient{
			{Email: "leader@example.com", Name: "Lea Der"},
		},
		TemplateContext: map[string]any{
			"DocumentKey": "FAC09001-FWF-000-HSE-REP-0004",
		},
		Backends:    []string{"mail", "audit"},
		DocumentKey: "FAC09001-FWF-000-HSE-REP-0004",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"document_key":"FAC09001-FWF-000-HSE-REP-0004"`)
	assert.NotContains(t, string(data), "transmittal_key")

	var decoded NotificationMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.Recipients, decoded.Recipients)
	assert.Equal(t, msg.Backends, decoded.Backends)
}

func TestDeterminePartitionKey(t *testing.T) {
	tests := []struct {
		name string
		msg  NotificationMessage
		want string
	}{
		{
			name: "document first",
			msg:  NotificationMessage{ID: "id", DocumentKey: "DOC-1", TransmittalKey: "TRS-1"},
			want: "doc:DOC-1",
		},
		{
			name: "transmittal",
			msg:  NotificationMessage{ID: "id", TransmittalKey: "TRS-1"},
			want: "trs:TRS-1",
		},
		{
			name: "recipient",
			msg:  NotificationMessage{ID: "id", Recipients: []Recipient{{Email: "a@example.com"}}},
			want: "user:a@example.com",
		},
		{
			name: "message id",
			msg:  NotificationMessage{ID: "id"},
			want: "id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determinePartitionKey(&tt.msg))
		})
	}
}

type recordingSender struct {
	sent []*NotificationMessage
}

func (s *recordingSender) Send(_ context.Context, msg *NotificationMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

type recordingDLQ struct {
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ *NotificationMessage, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

func TestRetryHandler_CalculateNextRetry(t *testing.T) {
	h := NewRetryHandler(DefaultRetryConfig(), nil, nil)

	assert.Equal(t, time.Minute, h.CalculateNextRetry(0))
	assert.Equal(t, 2*time.Minute, h.CalculateNextRetry(1))
	assert.Equal(t, 16*time.Minute, h.CalculateNextRetry(4))
	assert.Equal(t, 2*time.Hour, h.CalculateNextRetry(20))
}

func TestRetryHandler_HandleFailure(t *testing.T) {
	retry := &recordingSender{}
	dlq := &recordingDLQ{}
	h := NewRetryHandler(RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2,
	}, retry, dlq)
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	msg := &NotificationMessage{ID: "m", Backends: []string{"mail", "audit"}}
	cause := errors.New("smtp down")

	require.NoError(t, h.HandleFailure(context.Background(), msg, cause, []string{"mail"}))
	require.Len(t, retry.sent, 1)
	retried := retry.sent[0]
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "smtp down", retried.LastError)
	assert.Equal(t, []string{"mail"}, retried.Backends)
	assert.Equal(t, now.Add(2*time.Second), retried.NextRetryAt)
	assert.Equal(t, 0, msg.RetryCount)

	exhausted := &NotificationMessage{ID: "m", RetryCount: 2}
	require.NoError(t, h.HandleFailure(context.Background(), exhausted, cause, nil))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "smtp down")
	assert.Len(t, retry.sent, 1)
}

func TestRetryHandler_NoDLQ(t *testing.T) {
	h := NewRetryHandler(RetryConfig{MaxRetries: 0}, &recordingSender{}, nil)
	err := h.HandleFailure(context.Background(), &NotificationMessage{ID: "m"}, errors.New("x"), nil)
	assert.ErrorContains(t, err, "exceeded max retries")
}
