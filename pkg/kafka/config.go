package kafka

import (
	"os"
	"strings"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/notifications"
)

// GetEventBrokers returns the broker addresses of the event relay.
// It checks environment variables first, then falls back to config.
// An empty result means no broker is configured.
func GetEventBrokers(cfg *config.Config) []string {
	// Try environment variable first
	if brokers := os.Getenv("PHASE_EVENT_BROKERS"); brokers != "" {
		return splitBrokers(brokers)
	}

	// Fall back to config
	if cfg.Events != nil {
		return cfg.Events.Brokers
	}
	return nil
}

// GetEventTopic returns the document event topic name.
// It checks environment variables first, then falls back to config, then default.
func GetEventTopic(cfg *config.Config) string {
	if topic := os.Getenv("PHASE_EVENT_TOPIC"); topic != "" {
		return topic
	}
	if cfg.Events != nil && cfg.Events.Topic != "" {
		return cfg.Events.Topic
	}
	return events.DefaultTopic
}

// GetNotificationBrokers returns the broker addresses of the notification
// topic, defaulting to the event brokers.
func GetNotificationBrokers(cfg *config.Config) []string {
	if brokers := os.Getenv("PHASE_NOTIFICATION_BROKERS"); brokers != "" {
		return splitBrokers(brokers)
	}
	if cfg.Notifications != nil && len(cfg.Notifications.Brokers) > 0 {
		return cfg.Notifications.Brokers
	}
	return GetEventBrokers(cfg)
}

// GetNotificationTopic returns the notification topic name.
func GetNotificationTopic(cfg *config.Config) string {
	if topic := os.Getenv("PHASE_NOTIFICATION_TOPIC"); topic != "" {
		return topic
	}
	if cfg.Notifications != nil && cfg.Notifications.Topic != "" {
		return cfg.Notifications.Topic
	}
	return notifications.DefaultTopic
}

// GetDLQTopic returns the notification dead letter topic name.
func GetDLQTopic(cfg *config.Config) string {
	if cfg.Notifications != nil && cfg.Notifications.DLQTopic != "" {
		return cfg.Notifications.DLQTopic
	}
	return notifications.DefaultDLQTopic
}

// GetConsumerGroup returns the consumer group name for notification workers.
// It checks environment variables first, then falls back to config, then default.
func GetConsumerGroup(cfg *config.Config) string {
	if group := os.Getenv("PHASE_CONSUMER_GROUP"); group != "" {
		return group
	}
	if cfg.Notifications != nil && cfg.Notifications.ConsumerGroup != "" {
		return cfg.Notifications.ConsumerGroup
	}
	return "phase-notifiers"
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
