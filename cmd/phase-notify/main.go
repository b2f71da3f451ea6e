package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/pkg/kafka"
	"github.com/phase-edms/phase/pkg/notifications"
	"github.com/phase-edms/phase/pkg/notifications/backends"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to HCL configuration file")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{Name: "phase-notify"})
	if err := run(*configFile, logger); err != nil {
		logger.Error("notification worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile string, logger hclog.Logger) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	brokers := kafka.GetNotificationBrokers(cfg)
	if len(brokers) == 0 {
		return errors.New("no notification brokers configured")
	}
	topic := kafka.GetNotificationTopic(cfg)
	group := kafka.GetConsumerGroup(cfg)

	registry, err := backends.NewRegistry(cfg.Notifications.Backends, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend registry: %w", err)
	}
	if len(registry.GetAll()) == 0 {
		return errors.New("no backends initialized")
	}

	publisher, err := notifications.NewPublisher(notifications.PublisherConfig{Brokers: brokers, Topic: topic})
	if err != nil {
		return err
	}
	defer publisher.Close()

	dlq, err := notifications.NewDLQPublisher(notifications.DLQPublisherConfig{
		Brokers: brokers,
		Topic:   kafka.GetDLQTopic(cfg),
	})
	if err != nil {
		return err
	}
	defer dlq.Close()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	defer client.Close()

	w := &worker{
		dispatcher: backends.NewDispatcher(registry, backends.DispatcherConfig{Logger: logger}),
		retry:      notifications.NewRetryHandler(notifications.DefaultRetryConfig(), publisher, dlq),
		dlq:        dlq,
		logger:     logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting notification worker",
		"backends", registry.GetBackendNames(),
		"topic", topic,
		"group", group,
	)
	w.consume(ctx, client)
	return nil
}

// committer commits processed records.
type committer interface {
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

type worker struct {
	dispatcher notifications.Sender
	retry      *notifications.RetryHandler
	dlq        notifications.DeadLetterSender
	logger     hclog.Logger

	inFlight sync.WaitGroup
}

func (w *worker) consume(ctx context.Context, client *kgo.Client) {
	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			w.shutdown()
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				w.logger.Error("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
			}
			continue
		}

		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				w.inFlight.Add(1)
				go func() {
					defer w.inFlight.Done()
					w.processRecord(ctx, client, record)
				}()
			}
		})
	}
}

func (w *worker) shutdown() {
	w.logger.Info("shutdown signal received, waiting for in-flight messages")

	done := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("all in-flight messages completed")
	case <-time.After(shutdownTimeout):
		w.logger.Warn("shutdown timeout reached, some messages may be incomplete", "timeout", shutdownTimeout)
	}
}

// processRecord handles one record and commits its offset unless the
// outcome could not be recorded anywhere.
func (w *worker) processRecord(ctx context.Context, c committer, record *kgo.Record) {
	if err := w.process(ctx, record); err != nil {
		w.logger.Error("failed to process message", "offset", record.Offset, "error", err)
		return
	}
	if err := c.CommitRecords(ctx, record); err != nil {
		w.logger.Error("failed to commit record offset", "offset", record.Offset, "error", err)
	}
}

// process delivers a message to the backends. Failed deliveries are handed
// to the retry handler; permanent failures go to the dead letter queue.
func (w *worker) process(ctx context.Context, record *kgo.Record) error {
	var msg notifications.NotificationMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		// A malformed record never becomes valid; skip it.
		w.logger.Error("dropping malformed message", "offset", record.Offset, "error", err)
		return nil
	}

	if wait := time.Until(msg.NextRetryAt); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	w.logger.Debug("processing message", "id", msg.ID, "type", msg.Type, "backends", msg.Backends, "retry", msg.RetryCount)
	err := w.dispatcher.Send(ctx, &msg)
	if err == nil {
		return nil
	}

	var multiErr *backends.MultiBackendError
	if !errors.As(err, &multiErr) {
		return w.retry.HandleFailure(ctx, &msg, err, nil)
	}

	retryable := multiErr.RetryableBackends()
	if len(retryable) == 0 && w.dlq != nil {
		w.logger.Warn("permanent delivery failure", "id", msg.ID, "error", err)
		return w.dlq.PublishToDLQ(ctx, &msg, err.Error())
	}
	return w.retry.HandleFailure(ctx, &msg, err, retryable)
}
