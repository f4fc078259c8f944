// Package api exposes the HTTP interface for the data hunter.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/events"
	"github.com/JakeFAU/data-hunter/internal/hunter"
	"github.com/JakeFAU/data-hunter/internal/telemetry"
)

const (
	defaultCommandTimeout = 10 * time.Second
	defaultKeepAlive      = 15 * time.Second
	readyCheckTimeout     = 2 * time.Second
)

// Controller is the slice of the orchestrator the command handlers drive.
type Controller interface {
	Start() bool
	Stop() bool
	State() *hunter.State
}

// EventSource hands out bus subscriptions for the stream endpoint.
type EventSource interface {
	Subscribe() *events.Subscription
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger         *zap.Logger
	Clock          hunter.Clock
	CommandTimeout time.Duration
	KeepAlive      time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Static serves every path no route matched.
	Static      http.Handler
	ReadyChecks map[string]ReadyCheck
}

// Server wires HTTP handlers to the orchestrator and the event bus.
type Server struct {
	router    chi.Router
	engine    Controller
	bus       EventSource
	publisher hunter.Publisher
	clock     hunter.Clock
	logger    *zap.Logger
	keepAlive time.Duration
	ready     map[string]ReadyCheck
}

// NewServer constructs a Server with middleware and routes. Events raised by
// command handlers go to publisher.
func NewServer(engine Controller, bus EventSource, publisher hunter.Publisher, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	s := &Server{
		engine:    engine,
		bus:       bus,
		publisher: publisher,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("api"),
		keepAlive: opts.KeepAlive,
		ready:     opts.ReadyChecks,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		// The stream outlives any request timeout.
		r.Get("/sse", s.stream)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.CommandTimeout))
			r.Post("/start", s.start)
			r.Post("/stop", s.stop)
			r.Post("/config", s.updateConfig)
			r.Post("/topics", s.updateTopics)
			r.Get("/status", s.status)
			r.Get("/export", s.export)
		})
	})

	if opts.Static != nil {
		r.NotFound(opts.Static.ServeHTTP)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.ready {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds command handlers. http.TimeoutHandler buffers the
// response and hides http.Flusher, so it must never wrap the stream route.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
