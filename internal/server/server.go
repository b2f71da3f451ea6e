// Package server assembles the services of a phase process from its
// configuration.
package server

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/phase-edms/phase/internal/config"
	"github.com/phase-edms/phase/internal/db"
	notify "github.com/phase-edms/phase/internal/notifications"
	"github.com/phase-edms/phase/pkg/clock"
	"github.com/phase-edms/phase/pkg/doctype"
	"github.com/phase-edms/phase/pkg/events"
	"github.com/phase-edms/phase/pkg/exports"
	"github.com/phase-edms/phase/pkg/kafka"
	"github.com/phase-edms/phase/pkg/notifications"
	"github.com/phase-edms/phase/pkg/notifications/backends"
	"github.com/phase-edms/phase/pkg/reviews"
	"github.com/phase-edms/phase/pkg/search"
	"github.com/phase-edms/phase/pkg/storage"
	"github.com/phase-edms/phase/pkg/transmittals"
	"github.com/phase-edms/phase/pkg/valuelists"
	"github.com/phase-edms/phase/pkg/workflow"
)

// Server contains the services of a phase process.
type Server struct {
	// Config is the loaded configuration.
	Config *config.Config

	DB      *gorm.DB
	Storage storage.Storage
	Bus     *events.Bus
	Types   *doctype.Registry
	Clock   clock.Clock

	// Notifier resolves notification templates and hands the messages to
	// the notification topic, or to the backends when no broker is set.
	Notifier *notify.Provider

	Workflow     *workflow.Orchestrator
	Reviews      *reviews.Service
	Reminder     *reviews.Reminder
	Transmittals *transmittals.Packager
	Exports      *exports.Service

	// Index is the document search index.
	Index *search.Index

	Logger hclog.Logger

	closers []func() error
}

// Options overrides parts of the assembly. Zero values are built from the
// configuration.
type Options struct {
	DB      *gorm.DB
	Storage storage.Storage
	Sender  notifications.Sender
	Clock   clock.Clock
}

// New assembles a server from cfg.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		Config: cfg,
		Clock:  clock.Or(opts.Clock),
		Logger: logger,
		Bus:    events.NewBus(logger),
	}

	if err := s.init(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context, opts Options) error {
	var err error
	cfg := s.Config

	lists := valuelists.Default()
	if cfg.ValueLists != "" {
		if lists, err = loadValueLists(cfg.ValueLists); err != nil {
			return err
		}
	}
	s.Types = doctype.DefaultRegistry(lists)

	s.DB = opts.DB
	if s.DB == nil {
		if s.DB, err = db.NewDB(cfg, s.Logger); err != nil {
			return err
		}
		s.closers = append(s.closers, func() error {
			sqlDB, err := s.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}

	s.Storage = opts.Storage
	if s.Storage == nil {
		if s.Storage, err = newStorage(ctx, cfg.Storage, s.Logger); err != nil {
			return err
		}
	}

	sender := opts.Sender
	if sender == nil {
		if sender, err = s.newSender(); err != nil {
			return err
		}
	}
	if s.Notifier, err = notify.NewProvider(sender, s.Clock, s.Logger); err != nil {
		return err
	}

	if s.Index, err = search.Open(search.Config{IndexPath: cfg.Search.IndexPath, Logger: s.Logger}); err != nil {
		return err
	}
	s.closers = append(s.closers, s.Index.Close)
	s.Index.Register(s.Bus)

	if s.Workflow, err = workflow.New(workflow.Config{
		DB: s.DB, Types: s.Types, Bus: s.Bus, Clock: s.Clock, Logger: s.Logger,
	}); err != nil {
		return err
	}

	if s.Reviews, err = reviews.NewService(reviews.Config{
		DB: s.DB, Types: s.Types, Bus: s.Bus, Clock: s.Clock, Logger: s.Logger,
	}); err != nil {
		return err
	}
	s.Bus.Subscribe(events.ReviewStarted, "review-started-notification", reviews.NotifyReviewStarted(s.Notifier))

	if s.Reminder, err = reviews.NewReminder(reviews.ReminderConfig{
		DB:               s.DB,
		Notifier:         s.Notifier,
		Clock:            s.Clock,
		Logger:           s.Logger,
		RemindWithinDays: cfg.Reviews.RemindWithinDays,
	}); err != nil {
		return err
	}

	if s.Transmittals, err = transmittals.NewPackager(transmittals.Config{
		DB:          s.DB,
		Bus:         s.Bus,
		Storage:     s.Storage,
		Clock:       s.Clock,
		Logger:      s.Logger,
		OutgoingDir: cfg.Transmittals.OutgoingDir,
		AckDueDays:  cfg.Transmittals.AckDueDays,
	}); err != nil {
		return err
	}
	s.Transmittals.Register()
	s.Bus.SubscribeSender(events.TransmittalCreated, events.SenderOutgoingTransmittal,
		"transmittal-created-notification", transmittals.NotifyCreated(s.Notifier, cfg.Transmittals.Recipients))

	if s.Exports, err = exports.NewService(exports.ServiceConfig{
		DB:      s.DB,
		Storage: s.Storage,
		Clock:   s.Clock,
		Logger:  s.Logger,
		Dir:     cfg.Exports.Dir,
	}); err != nil {
		return err
	}

	return nil
}

// newSender returns the notification publisher when brokers are configured,
// otherwise a dispatcher over the configured backends.
func (s *Server) newSender() (notifications.Sender, error) {
	if brokers := kafka.GetNotificationBrokers(s.Config); len(brokers) > 0 {
		pub, err := notifications.NewPublisher(notifications.PublisherConfig{
			Brokers: brokers,
			Topic:   kafka.GetNotificationTopic(s.Config),
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error {
			pub.Close()
			return nil
		})
		return pub, nil
	}

	registry, err := backends.NewRegistry(s.Config.Notifications.Backends, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification backends: %w", err)
	}
	return backends.NewDispatcher(registry, backends.DispatcherConfig{Logger: s.Logger}), nil
}

func newStorage(ctx context.Context, cfg *config.Storage, logger hclog.Logger) (storage.Storage, error) {
	if cfg.S3 != nil {
		return storage.NewS3(ctx, *cfg.S3, logger)
	}
	return storage.NewLocal(cfg.Root)
}

func loadValueLists(path string) (*valuelists.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open value lists: %w", err)
	}
	defer f.Close()

	lists := valuelists.Default()
	if err := lists.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("failed to load value lists %s: %w", path, err)
	}
	return lists, nil
}

// Close releases the resources opened by New, in reverse order.
func (s *Server) Close() error {
	var result *multierror.Error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}
