package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/phase-edms/phase/internal/testutil"
	"github.com/phase-edms/phase/pkg/models"
)

// createKafkaTopic creates a Kafka topic for testing.
func createKafkaTopic(t *testing.T, ctx context.Context, brokers string, topicName string) {
	adminClient, err := kgo.NewClient(kgo.SeedBrokers(brokers))
	require.NoError(t, err)
	defer adminClient.Close()

	req := kmsg.NewCreateTopicsRequest()
	req.Topics = []kmsg.CreateTopicsRequestTopic{
		{
			Topic:             topicName,
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
	}
	_, err = adminClient.Request(ctx, &req)
	require.NoError(t, err)

	time.Sleep(1 * time.Second)
}

func TestRelay_PublishToRedpanda(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:latest")
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	brokers, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	topic := "test.document-events"
	createKafkaTopic(t, ctx, brokers, topic)

	db := testutil.SetupDB(t)
	evt := New(DocumentCreated, "contractor_deliverable", time.Now())
	evt.Document = &models.Document{ID: 1, DocumentKey: "FAC09001-FWF-000-HSE-REP-0004"}
	require.NoError(t, RecordOutbox(db, evt))

	relay, err := NewRelay(RelayConfig{
		DB:      db,
		Brokers: []string{brokers},
		Topic:   topic,
		Logger:  hclog.NewNullLogger(),
	})
	require.NoError(t, err)
	defer relay.Stop()

	published, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup("test-consumer"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var received *Message
	var key string
	for received == nil {
		fetches := consumer.PollFetches(fetchCtx)
		if fetches.IsClientClosed() || fetchCtx.Err() != nil {
			break
		}
		require.NoError(t, fetches.Err())

		fetches.EachRecord(func(record *kgo.Record) {
			var msg Message
			require.NoError(t, json.Unmarshal(record.Value, &msg))
			received = &msg
			key = string(record.Key)
		})
	}

	require.NotNil(t, received, "no message received from Redpanda")
	assert.Equal(t, DocumentCreated, received.Event)
	assert.Equal(t, "FAC09001-FWF-000-HSE-REP-0004", key)
	assert.Equal(t, evt.ID.String(), received.Payload["event_id"])
}
