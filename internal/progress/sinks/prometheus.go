package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// PrometheusSink derives session level metrics from the event stream.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsRunning   prometheus.Gauge
	sessionSources    prometheus.Histogram

	sources   *prometheus.CounterVec
	logEvents *prometheus.CounterVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunter_sessions_started_total",
			Help: "Crawl sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunter_sessions_completed_total",
			Help: "Crawl sessions that have ended.",
		}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hunter_sessions_running",
			Help: "Crawl sessions currently running.",
		}),
		sessionSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hunter_session_sources",
			Help:    "Sources collected per finished session.",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
		}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_sources_total",
			Help: "Discovered sources partitioned by topic.",
		}, []string{"topic"}),
		logEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunter_log_events_total",
			Help: "Observer log events partitioned by level.",
		}, []string{"level"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionSources,
		s.sources,
		s.logEvents,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []hunter.Event) error {
	for _, evt := range batch {
		if evt.SessionID != "" && !isFinal(evt) && s.tracker.begin(evt.SessionID) {
			s.sessionsStarted.Inc()
			s.sessionsRunning.Inc()
		}
		switch evt.Kind {
		case hunter.KindLog:
			s.logEvents.WithLabelValues(string(evt.Log.Level)).Inc()
		case hunter.KindSource:
			topic := evt.Source.Topic
			if topic == "" {
				topic = hunter.TopicWeb
			}
			s.sources.WithLabelValues(topic).Inc()
		case hunter.KindStatus:
			if isFinal(evt) && s.tracker.end(evt.SessionID) {
				s.sessionsCompleted.Inc()
				s.sessionsRunning.Dec()
				s.sessionSources.Observe(float64(evt.Status.Count))
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
