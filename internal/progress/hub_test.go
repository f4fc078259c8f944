package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Publish(sampleEvent("a"))
	hub.Publish(sampleEvent("b"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Publish(sampleEvent("a"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubPublishNonBlockingWhenFull asserts Publish never blocks callers, even with no reader.
func TestHubPublishNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		queue:  make(chan hunter.Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	for i := 0; i < 100; i++ {
		hub.Publish(sampleEvent("x"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubDropsInvalidEvents keeps malformed events away from sinks.
func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)
	hub.Publish(hunter.Event{Kind: hunter.KindSource})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubFlushOnClose ensures Close drains buffered events in order and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	failing := &stubSink{consumeErr: errors.New("boom")}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink, nil, failing)

	for i := 0; i < 5; i++ {
		hub.Publish(sampleEvent(fmt.Sprint(i)))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	var msgs []string
	for _, batch := range sink.Batches() {
		for _, evt := range batch {
			msgs = append(msgs, evt.Log.Message)
		}
	}
	require.Equal(t, []string{"0", "1", "2", "3", "4"}, msgs)
	require.True(t, sink.Closed())
	require.True(t, failing.Closed())

	batches := len(sink.Batches())
	hub.Publish(sampleEvent("late"))
	require.Len(t, sink.Batches(), batches)
}

func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	r := rateLimiter{interval: time.Second}
	now := time.Unix(100, 0)
	require.True(t, r.Allow(now))
	require.False(t, r.Allow(now.Add(500*time.Millisecond)))
	require.True(t, r.Allow(now.Add(2*time.Second)))
}

type stubSink struct {
	mu         sync.Mutex
	batches    [][]hunter.Event
	closed     bool
	consumeErr error
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []hunter.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]hunter.Event(nil), batch...))
	return s.consumeErr
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]hunter.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]hunter.Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]hunter.Event(nil), b...)
	}
	return out
}

func sampleEvent(msg string) hunter.Event {
	evt := hunter.NewLogEvent(time.Now(), hunter.LevelInfo, msg)
	evt.SessionID = "session"
	return evt
}
