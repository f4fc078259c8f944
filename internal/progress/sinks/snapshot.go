package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

const csvContentType = "text/csv; charset=utf-8"

// BlobWriter stores an object and returns its URI.
type BlobWriter interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// SnapshotSink writes a CSV of each session's sources once the session ends.
type SnapshotSink struct {
	blobs   BlobWriter
	prefix  string
	pending map[string][]hunter.Source
	logger  *zap.Logger
}

// NewSnapshotSink stores snapshots under prefix.
func NewSnapshotSink(blobs BlobWriter, prefix string, logger *zap.Logger) *SnapshotSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotSink{
		blobs:   blobs,
		prefix:  prefix,
		pending: make(map[string][]hunter.Source),
		logger:  logger,
	}
}

// Consume buffers sources per session and flushes on the closing Status.
func (s *SnapshotSink) Consume(ctx context.Context, batch []hunter.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.SessionID == "" {
			continue
		}
		switch {
		case evt.Kind == hunter.KindSource:
			s.pending[evt.SessionID] = append(s.pending[evt.SessionID], *evt.Source)
		case isFinal(evt):
			if err := s.write(ctx, evt.SessionID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close writes whatever sessions never reported an end.
func (s *SnapshotSink) Close(ctx context.Context) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	var errs []error
	for id := range s.pending {
		if err := s.write(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObjectPath returns where the snapshot of sessionID is stored.
func (s *SnapshotSink) ObjectPath(sessionID string) string {
	return path.Join(s.prefix, sessionID+".csv")
}

func (s *SnapshotSink) write(ctx context.Context, sessionID string) error {
	sources := s.pending[sessionID]
	delete(s.pending, sessionID)

	var buf bytes.Buffer
	if err := hunter.WriteCSV(&buf, sources); err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}
	uri, err := s.blobs.PutObject(ctx, s.ObjectPath(sessionID), csvContentType, &buf)
	if err != nil {
		return fmt.Errorf("store snapshot %s: %w", sessionID, err)
	}
	s.logger.Info("session snapshot stored",
		zap.String("session_id", sessionID),
		zap.String("uri", uri),
		zap.Int("sources", len(sources)),
	)
	return nil
}
