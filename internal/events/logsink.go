package events

import (
	"context"
	"log/slog"
)

// LogSink writes audit events to the structured log. Always configured;
// the log is the baseline audit trail when no bus is wired.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

var _ Sink = (*LogSink)(nil)

func (s *LogSink) Write(_ context.Context, e *Event) error {
	s.logger.Info("audit event",
		"eventId", e.ID,
		"type", string(e.Type),
		"data", e.Data,
	)
	return nil
}
