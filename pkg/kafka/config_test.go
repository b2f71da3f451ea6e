package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/notifications"
)

func TestBrokers(t *testing.T) {
	t.Setenv("PHASE_EVENT_BROKERS", "")
	t.Setenv("PHASE_NOTIFICATION_BROKERS", "")
	assert.Nil(t, GetEventBrokers(&config.Config{}))

	cfg := &config.Config{
		Events: &config.Events{Brokers: []string{"events:9092"}},
	}
	assert.Equal(t, []string{"events:9092"}, GetEventBrokers(cfg))
	assert.Equal(t, []string{"events:9092"}, GetNotificationBrokers(cfg))

	cfg.Notifications = &config.Notifications{Brokers: []string{"notify:9092"}}
	assert.Equal(t, []string{"notify:9092"}, GetNotificationBrokers(cfg))

	t.Setenv("PHASE_EVENT_BROKERS", " a:9092, ,b:9092 ")
	assert.Equal(t, []string{"a:9092", "b:9092"}, GetEventBrokers(cfg))
}

func TestTopics(t *testing.T) {
	t.Setenv("PHASE_EVENT_TOPIC", "")
	t.Setenv("PHASE_NOTIFICATION_TOPIC", "")
	t.Setenv("PHASE_CONSUMER_GROUP", "")
	cfg := &config.Config{}
	assert.Equal(t, events.DefaultTopic, GetEventTopic(cfg))
	assert.Equal(t, notifications.DefaultTopic, GetNotificationTopic(cfg))
	assert.Equal(t, notifications.DefaultDLQTopic, GetDLQTopic(cfg))
	assert.Equal(t, "phase-notifiers", GetConsumerGroup(cfg))

	cfg.Notifications = &config.Notifications{
		Topic:         "mail",
		DLQTopic:      "mail.dlq",
		ConsumerGroup: "mailers",
	}
	assert.Equal(t, "mail", GetNotificationTopic(cfg))
	assert.Equal(t, "mail.dlq", GetDLQTopic(cfg))
	assert.Equal(t, "mailers", GetConsumerGroup(cfg))

	t.Setenv("PHASE_EVENT_TOPIC", "docs")
	t.Setenv("PHASE_CONSUMER_GROUP", "ops")
	assert.Equal(t, "docs", GetEventTopic(cfg))
	assert.Equal(t, "ops", GetConsumerGroup(cfg))
}
