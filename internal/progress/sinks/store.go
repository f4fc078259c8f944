package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// SourceRepository persists sessions and the sources they discovered.
type SourceRepository interface {
	StartSession(ctx context.Context, sessionID string, startedAt time.Time) error
	RecordSource(ctx context.Context, sessionID string, src hunter.Source, foundAt time.Time) error
	FinishSession(ctx context.Context, sessionID string, finishedAt time.Time, st hunter.Status) error
}

// StoreSink archives every session to a SourceRepository. Events that do not
// belong to a session are ignored.
type StoreSink struct {
	repo    SourceRepository
	tracker *sessionTracker
	logger  *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo SourceRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, tracker: newSessionTracker(), logger: logger}
}

// Consume writes the batch in order and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []hunter.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.SessionID == "" {
			continue
		}
		if !s.tracker.known(evt.SessionID) {
			if err := s.repo.StartSession(ctx, evt.SessionID, evt.At); err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			s.tracker.begin(evt.SessionID)
		}
		switch {
		case evt.Kind == hunter.KindSource:
			if err := s.repo.RecordSource(ctx, evt.SessionID, *evt.Source, evt.At); err != nil {
				return fmt.Errorf("record source: %w", err)
			}
		case isFinal(evt):
			if err := s.repo.FinishSession(ctx, evt.SessionID, evt.At, *evt.Status); err != nil {
				return fmt.Errorf("finish session: %w", err)
			}
			s.tracker.end(evt.SessionID)
			s.logger.Debug("session archived", zap.String("session_id", evt.SessionID), zap.Int("count", evt.Status.Count))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
