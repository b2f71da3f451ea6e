package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phase-edms/phase/pkg/models"
)

func TestBus_DispatchOrder(t *testing.T) {
	bus := NewBus(nil)

	var calls []string
	bus.Subscribe(DocumentCreated, "first", func(ctx context.Context, evt Event) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Subscribe(DocumentCreated, "second", func(ctx context.Context, evt Event) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(DocumentRevised, "other", func(ctx context.Context, evt Event) error {
		calls = append(calls, "other")
		return nil
	})

	require.NoError(t, bus.Dispatch(context.Background(), New(DocumentCreated, "demo_metadata", time.Now())))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBus_SenderFilter(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.SubscribeSender(TransmittalCreated, SenderOutgoingTransmittal, "post-save", func(ctx context.Context, evt Event) error {
		got = append(got, evt.Sender)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bus.Dispatch(ctx, New(TransmittalCreated, SenderIncomingTransmittal, time.Now())))
	require.NoError(t, bus.Dispatch(ctx, New(TransmittalCreated, SenderOutgoingTransmittal, time.Now())))
	assert.Equal(t, []string{SenderOutgoingTransmittal}, got)
}

func TestBus_HandlerFailuresAreCollected(t *testing.T) {
	bus := NewBus(nil)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	ran := 0
	bus.Subscribe(RevisionEdited, "a", func(ctx context.Context, evt Event) error {
		ran++
		return errA
	})
	bus.Subscribe(RevisionEdited, "b", func(ctx context.Context, evt Event) error {
		ran++
		return errB
	})
	bus.Subscribe(RevisionEdited, "c", func(ctx context.Context, evt Event) error {
		ran++
		return nil
	})

	err := bus.Dispatch(context.Background(), New(RevisionEdited, "demo_metadata_revision", time.Now()))
	require.Error(t, err)
	assert.Equal(t, 3, ran, "every handler runs")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestBus_DispatchAll(t *testing.T) {
	bus := NewBus(nil)
	var names []string
	for _, name := range []string{DocumentCreated, ReviewStarted} {
		bus.Subscribe(name, "rec", func(ctx context.Context, evt Event) error {
			names = append(names, evt.Name)
			return nil
		})
	}

	err := bus.DispatchAll(context.Background(), []Event{
		New(DocumentCreated, "x", time.Now()),
		New(ReviewStarted, "x", time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{DocumentCreated, ReviewStarted}, names)
}

func TestEvent_Payload(t *testing.T) {
	evt := New(DocumentRevised, "correspondence", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	evt.Document = &models.Document{ID: 3, DocumentKey: "A-B", DocumentType: "correspondence"}
	evt.Revision = &models.Revision{ID: 9, Revision: 2}

	p := evt.Payload()
	assert.Equal(t, DocumentRevised, p["event"])
	assert.Equal(t, "A-B", p["document_key"])
	assert.Equal(t, 2, p["revision"])
	assert.Equal(t, "2024-01-15T10:30:00Z", p["occurred_at"])
	assert.NotContains(t, p, "transmittal_key")
	assert.Equal(t, "A-B", evt.PartitionKey())

	trs := New(TransmittalCreated, SenderOutgoingTransmittal, time.Now())
	trs.Transmittal = &models.Transmittal{TransmittalKey: "T-1"}
	assert.Equal(t, "T-1", trs.PartitionKey())
}
