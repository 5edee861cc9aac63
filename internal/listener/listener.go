// Package listener provides a Postgres LISTEN/NOTIFY consumer that nudges the
// polling engine when the report backend announces a new report. It holds a
// dedicated pgx connection (not from the pool) listening on the
// `report_created` channel.
//
// A notification only triggers an out-of-schedule check; the report itself
// is still fetched, filtered and deduplicated by the engine.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cerberusteck/sirse-watch/internal/report"
)

const (
	channel          = "report_created"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Triggerer requests an immediate check. Satisfied by *poller.Engine.
type Triggerer interface {
	Trigger()
}

// ReportEvent is the optional JSON payload from pg_notify('report_created', ...).
type ReportEvent struct {
	ID        report.ID `json:"id"`
	Category  string    `json:"category"`
	Timestamp int64     `json:"ts"`
}

// Start opens a dedicated connection and listens on the report_created
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, trigger Triggerer, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, trigger, logger)
		if ctx.Err() != nil {
			logger.Info("Report listener stopped (context cancelled)")
			return
		}

		logger.Error("Report listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, trigger Triggerer, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Report listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		handleNotification(notification.Payload, trigger, logger)
	}
}

// handleNotification logs the event and triggers a check. Payloads that are
// empty or not JSON still trigger.
func handleNotification(payload string, trigger Triggerer, logger *slog.Logger) {
	var event ReportEvent
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			logger.Debug("Unparsed report event payload", "payload", payload, "error", err)
		}
	}

	logger.Info("Report event received",
		"report_id", event.ID,
		"category", event.Category)
	trigger.Trigger()
}
