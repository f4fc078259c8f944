package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/events"
	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// stream relays bus events to one observer as server-sent events. Only events
// published after the subscription are delivered.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	logger := s.logger.With(zap.String("request_id", RequestID(ctx)))
	logger.Debug("observer connected")
	defer logger.Debug("observer disconnected")

	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.keepAlive)
		evt, err := sub.Recv(waitCtx)
		cancel()

		var lag *events.LagError
		switch {
		case err == nil:
		case errors.As(err, &lag):
			logger.Warn("observer lagged", zap.Uint64("missed", lag.Missed))
			evt = hunter.NewLogEvent(s.clock.Now(), hunter.LevelWarn,
				fmt.Sprintf("Stream lagging, %d events skipped.", lag.Missed))
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, werr := io.WriteString(w, ": keep-alive\n\n"); werr != nil {
				return
			}
			flusher.Flush()
			continue
		default:
			// Client gone or bus closed.
			return
		}

		data, err := json.Marshal(evt)
		if err != nil {
			logger.Warn("dropping unencodable event", zap.String("kind", string(evt.Kind)), zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}
