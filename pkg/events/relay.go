package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/pkg/models"
)

// DefaultTopic is the broker topic workflow events are published to.
const DefaultTopic = "phase.document-events"

// Producer publishes records to the broker. *kgo.Client implements it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Relay polls the event outbox and publishes pending entries to the broker.
type Relay struct {
	db           *gorm.DB
	producer     Producer
	topic        string
	logger       hclog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	newBackOff   func() backoff.BackOff
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// RelayConfig holds configuration for the relay.
type RelayConfig struct {
	DB *gorm.DB

	// Brokers are used to create a franz-go client when Producer is nil.
	Brokers  []string
	Producer Producer
	Topic    string

	PollInterval time.Duration // How often to poll the outbox (default: 1s)
	BatchSize    int           // Entries processed per batch (default: 100)

	// PublishRetries is the number of retries of a single publish before the
	// attempt counts as failed (default: 3).
	PublishRetries int
	// MaxAttempts is the number of failed attempts after which an entry is
	// marked failed (default: 5).
	MaxAttempts int
	// RetryInitialInterval is the first backoff interval (default: 100ms).
	RetryInitialInterval time.Duration

	Logger hclog.Logger
}

// NewRelay creates a new outbox relay.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Producer == nil && len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.PublishRetries == 0 {
		cfg.PublishRetries = 3
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	producer := cfg.Producer
	if producer == nil {
		client, err := NewKafkaClient(cfg.Brokers)
		if err != nil {
			return nil, err
		}
		producer = client
	}

	retries := uint64(cfg.PublishRetries)
	initial := cfg.RetryInitialInterval

	return &Relay{
		db:           cfg.DB,
		producer:     producer,
		topic:        cfg.Topic,
		logger:       cfg.Logger.Named("event-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = 10 * time.Second
			return backoff.WithMaxRetries(b, retries)
		},
		stopCh: make(chan struct{}),
	}, nil
}

// NewKafkaClient returns a producer client with durable acknowledgements.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			d := time.Duration(tries) * 100 * time.Millisecond
			if d > 60*time.Second {
				d = 60 * time.Second
			}
			return d
		}),
		kgo.RequestRetries(10),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return client, nil
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting event relay",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"topic", r.topic,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("event relay stopped")
			return nil

		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// Stop stops the polling loop and closes the producer. Later calls do
// nothing.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.producer.Close()
	})
}

// ProcessBatch publishes one batch of pending entries and returns the number
// published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := models.FindPendingOutboxEntries(r.db.WithContext(ctx), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	published := 0
	for i := range entries {
		entry := &entries[i]
		if err := r.publish(ctx, entry); err != nil {
			r.logger.Error("failed to publish outbox entry",
				"outbox_id", entry.ID,
				"event", entry.EventName,
				"error", err,
			)
			if markErr := entry.MarkAsFailed(r.db, err, r.maxAttempts); markErr != nil {
				r.logger.Error("failed to mark outbox entry as failed",
					"outbox_id", entry.ID,
					"error", markErr,
				)
			}
			continue
		}

		if err := entry.MarkAsPublished(r.db); err != nil {
			r.logger.Error("failed to mark outbox entry as published",
				"outbox_id", entry.ID,
				"error", err,
			)
			continue
		}
		published++
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"published", published,
		"failed", len(entries)-published,
	)
	return published, nil
}

// Message is the record value published for an outbox entry.
type Message struct {
	ID        uint           `json:"id"`
	Event     string         `json:"event"`
	Sender    string         `json:"sender"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

func (r *Relay) publish(ctx context.Context, entry *models.EventOutbox) error {
	value, err := json.Marshal(Message{
		ID:        entry.ID,
		Event:     entry.EventName,
		Sender:    entry.Sender,
		Payload:   entry.Payload,
		Timestamp: entry.CreatedAt,
	})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal event: %w", err))
	}

	key := fmt.Sprintf("%s:%d", entry.EventName, entry.ID)
	if k, ok := entry.Payload["document_key"].(string); ok && k != "" {
		key = k
	} else if k, ok := entry.Payload["transmittal_key"].(string); ok && k != "" {
		key = k
	}

	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(entry.EventName)},
			{Key: "sender", Value: []byte(entry.Sender)},
			{Key: "idempotent_key", Value: []byte(entry.IdempotentKey)},
		},
	}

	return backoff.Retry(func() error {
		if err := r.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("failed to publish to kafka: %w", err)
		}
		return nil
	}, backoff.WithContext(r.newBackOff(), ctx))
}

// Cleanup removes published entries older than olderThan.
func (r *Relay) Cleanup(olderThan time.Duration) (int64, error) {
	deleted, err := models.DeleteOldPublishedEntries(r.db, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}
	r.logger.Info("cleaned up old outbox entries",
		"deleted", deleted,
		"older_than", olderThan,
	)
	return deleted, nil
}

// OutboxStats contains statistics about the outbox state.
type OutboxStats struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Stats returns the number of entries per status.
func (r *Relay) Stats() (OutboxStats, error) {
	var stats OutboxStats
	var err error
	if stats.Pending, err = models.CountOutboxByStatus(r.db, models.OutboxStatusPending); err != nil {
		return stats, err
	}
	if stats.Published, err = models.CountOutboxByStatus(r.db, models.OutboxStatusPublished); err != nil {
		return stats, err
	}
	if stats.Failed, err = models.CountOutboxByStatus(r.db, models.OutboxStatusFailed); err != nil {
		return stats, err
	}
	return stats, nil
}
