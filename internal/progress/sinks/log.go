package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// LogSink writes one structured record per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []hunter.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Kind {
		case hunter.KindLog:
			fields = append(fields,
				zap.String("level", string(evt.Log.Level)),
				zap.String("msg", evt.Log.Message),
			)
		case hunter.KindSource:
			fields = append(fields,
				zap.String("url", evt.Source.URL),
				zap.String("topic", evt.Source.Topic),
			)
		case hunter.KindStatus:
			fields = append(fields,
				zap.Bool("running", evt.Status.Running),
				zap.Int("count", evt.Status.Count),
				zap.Int("target", evt.Status.Target),
				zap.Bool("has_custom_topics", evt.Status.HasCustomTopics),
			)
		}
		s.logger.Info("crawl event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
