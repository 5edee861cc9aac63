// Package app assembles the polling stack from configuration. It is shared
// by cmd/watcher and cmd/sirsectl.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/db"
	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
	"github.com/cerberusteck/sirse-watch/internal/notify"
	"github.com/cerberusteck/sirse-watch/internal/poller"
	"github.com/cerberusteck/sirse-watch/internal/report"
	"github.com/cerberusteck/sirse-watch/internal/seen"
)

// App is the wired polling stack.
type App struct {
	Config     *config.Config
	Pool       *db.Pool // nil when state lives in a file
	Store      kv.Store
	Seen       *seen.Store
	Engine     *poller.Engine
	Controller *lifecycle.Controller

	natsConn *nats.Conn
	kafka    *notify.KafkaSink
	logger   *slog.Logger
}

// New builds the stack and loads persisted state. The controller starts in
// the background state; callers decide when to foreground it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	// State store
	if cfg.DatabaseURL != "" {
		logger.Info("Connecting to database...")
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.Pool = pool
		a.Store = kv.NewPGStore(pool.Pool)
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
	} else {
		fs := kv.NewFileStore(cfg.StateFile)
		a.Store = fs
		logger.Info("Using file state store", "path", fs.Path())
	}

	// Notification sinks
	sinks := notify.Multi{notify.NewLogSink(logger)}
	var perms notify.Permissions = notify.Static(cfg.NotificationsGranted)

	if webhook := notify.NewWebhookSink(cfg.WebhookURL); webhook != nil {
		sinks = append(sinks, webhook)
		perms = webhook
		logger.Info("Webhook notifications enabled")
	}
	if cfg.NATSURL != "" {
		nc, err := connectNATS(cfg.NATSURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.natsConn = nc
		sinks = append(sinks, notify.NewNATSSink(nc, cfg.NATSSubject))
		logger.Info("NATS notifications enabled", "subject", cfg.NATSSubject)
	}
	if ks := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic); ks != nil {
		a.kafka = ks
		sinks = append(sinks, ks)
		logger.Info("Kafka notifications enabled", "topic", cfg.KafkaTopic)
	}

	// Polling
	source := report.NewClient(cfg.ReportsAPIURL, cfg.ReportsAPIToken, cfg.ReportsAPIRPM, logger)
	a.Seen = seen.New(a.Store, logger)
	a.Engine = poller.New(source, a.Seen, sinks, poller.Options{
		RadiusKm: cfg.RadiusKm,
		Filter:   report.Filter{Category: cfg.ReportCategory, Status: cfg.ReportStatus},
		Title:    cfg.NotificationTitle,
	}, logger)
	a.Controller = lifecycle.New(a.Engine, a.Seen, a.Store, perms, lifecycle.Options{
		Defaults: lifecycle.Config{
			Enabled:  cfg.PollEnabled,
			Interval: cfg.PollInterval,
			RadiusKm: cfg.RadiusKm,
		},
		CheckTimeout:  cfg.CheckTimeout,
		RestartSettle: cfg.RestartSettle,
	}, logger)

	a.Controller.Load(ctx)
	if cfg.HomeLocation != nil {
		if err := a.Controller.UpdateLocation(ctx, *cfg.HomeLocation); err != nil {
			a.Close()
			return nil, fmt.Errorf("home location: %w", err)
		}
	}
	return a, nil
}

// Close stops polling and releases connections.
func (a *App) Close() {
	if a.Controller != nil {
		a.Controller.Background()
	}
	var errs []error
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.natsConn != nil {
		errs = append(errs, a.natsConn.Drain())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error while closing notification transports", "error", err)
	}
}

func connectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("sirse-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}
