package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// MessagePublisher sends a JSON payload keyed by session.
type MessagePublisher interface {
	Publish(ctx context.Context, sessionID string, payload any) (string, error)
}

// SourceMessage is the payload exported for each discovered source.
type SourceMessage struct {
	SessionID   string    `json:"session_id"`
	URL         string    `json:"url"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	FoundAt     time.Time `json:"found_at"`
}

// PublisherSink exports each discovered source to a message topic.
type PublisherSink struct {
	publisher MessagePublisher
	logger    *zap.Logger
}

// NewPublisherSink wraps publisher.
func NewPublisherSink(publisher MessagePublisher, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, logger: logger}
}

// Consume publishes every Source event. A failed publish does not stop the
// rest of the batch; all failures are returned together.
func (s *PublisherSink) Consume(ctx context.Context, batch []hunter.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Kind != hunter.KindSource {
			continue
		}
		msg := SourceMessage{
			SessionID:   evt.SessionID,
			URL:         evt.Source.URL,
			Topic:       evt.Source.Topic,
			Description: evt.Source.Description,
			FoundAt:     evt.At.UTC(),
		}
		id, err := s.publisher.Publish(ctx, evt.SessionID, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", msg.URL, err))
			continue
		}
		s.logger.Debug("source published", zap.String("message_id", id), zap.String("url", msg.URL))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
