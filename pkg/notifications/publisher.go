package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the notification topic consumed by phase-notify.
const DefaultTopic = "phase.notifications"

// Publisher publishes notifications to Redpanda/Kafka
type Publisher struct {
	client *kgo.Client
	topic  string
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewPublisher creates a new notification publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Wait for all in-sync replicas to acknowledge
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second // Cap at 60s
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20), // 1MB
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Send publishes msg. It implements Sender.
func (p *Publisher) Send(ctx context.Context, msg *NotificationMessage) error {
	return p.PublishMessage(ctx, msg)
}

// PublishMessage publishes a pre-built notification message
func (p *Publisher) PublishMessage(ctx context.Context, msg *NotificationMessage) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(determinePartitionKey(msg)),
		Value: msgJSON,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() {
	p.client.Close()
}

// determinePartitionKey keeps the notifications of one document or
// transmittal ordered.
func determinePartitionKey(msg *NotificationMessage) string {
	if msg.DocumentKey != "" {
		return "doc:" + msg.DocumentKey
	}
	if msg.TransmittalKey != "" {
		return "trs:" + msg.TransmittalKey
	}
	if len(msg.Recipients) > 0 && msg.Recipients[0].Email != "" {
		return "user:" + msg.Recipients[0].Email
	}
	return msg.ID
}
