package notify

import (
	"context"
	"errors"
	"log/slog"
)

// LogSink writes notifications to the structured log. It is the fallback
// when no delivery transport is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every notification at Info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info("Local notification",
		"id", n.ID, "title", n.Title, "body", n.Body, "report_id", n.Data["reportId"])
	return nil
}

// Multi delivers to every sink. A failing sink does not stop the others;
// their errors are joined.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
