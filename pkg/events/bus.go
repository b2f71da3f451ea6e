package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Handler reacts to an event. Returned errors are reported to the
// dispatcher and never undo the committed change.
type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	name    string
	sender  string
	handler Handler
}

// Bus dispatches events to subscribed handlers. Safe for concurrent use.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription
	logger        hclog.Logger
}

// NewBus returns an empty bus.
func NewBus(logger hclog.Logger) *Bus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logger.Named("events"),
	}
}

// Subscribe registers a handler for every event named name. The handler is
// identified by handlerName in logs.
func (b *Bus) Subscribe(name, handlerName string, h Handler) {
	b.SubscribeSender(name, "", handlerName, h)
}

// SubscribeSender registers a handler for events named name emitted by
// sender. An empty sender matches every sender.
func (b *Bus) SubscribeSender(name, sender, handlerName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[name] = append(b.subscriptions[name], subscription{
		name:    handlerName,
		sender:  sender,
		handler: h,
	})
}

// Dispatch calls the handlers of evt in registration order. Every handler
// runs even when an earlier one fails; failures are returned together.
func (b *Bus) Dispatch(ctx context.Context, evt Event) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscriptions[evt.Name]...)
	b.mu.RUnlock()

	var result *multierror.Error
	for _, s := range subs {
		if s.sender != "" && s.sender != evt.Sender {
			continue
		}
		if err := s.handler(ctx, evt); err != nil {
			b.logger.Error("event handler failed",
				"event", evt.Name,
				"sender", evt.Sender,
				"handler", s.name,
				"error", err,
			)
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return result.ErrorOrNil()
}

// DispatchAll dispatches events in order.
func (b *Bus) DispatchAll(ctx context.Context, evts []Event) error {
	var result *multierror.Error
	for _, evt := range evts {
		if err := b.Dispatch(ctx, evt); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
