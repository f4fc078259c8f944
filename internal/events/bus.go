// Package events provides the in-process broadcast bus that carries crawl
// progress to live observers.
//
// The bus keeps a fixed ring of recent events. Publishers never block and never
// fail; a subscriber that falls more than a ring's worth behind is told how
// many events it missed and resumes from the oldest retained one. Subscribers
// only see events published after they subscribed.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
	"github.com/JakeFAU/data-hunter/internal/telemetry"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 200

// ErrClosed is returned by Recv once the bus is closed and drained.
var ErrClosed = errors.New("events: bus closed")

// LagError reports events a subscriber skipped because it fell behind.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("events: subscriber lagged, %d events skipped", e.Missed)
}

// Bus is a multi-producer, multi-consumer broadcast channel.
type Bus struct {
	logger *zap.Logger

	mu          sync.Mutex
	ring        []hunter.Event
	head        uint64 // sequence number of the next publish
	notify      chan struct{}
	closed      bool
	subscribers int
}

// New returns a bus retaining up to capacity events per subscriber.
func New(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		ring:   make([]hunter.Event, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends evt to the ring and wakes waiting subscribers. Events
// published after Close are dropped.
func (b *Bus) Publish(evt hunter.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ring[b.head%uint64(len(b.ring))] = evt
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
}

// Subscribe registers a new observer positioned at the current end of the
// stream.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers++
	telemetry.IncSubscribers()
	return &Subscription{bus: b, next: b.head}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribers
}

// Close stops accepting events. Subscribers drain what is retained and then
// receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
	b.logger.Debug("event bus closed", zap.Int("subscribers", b.subscribers))
}

// oldest returns the lowest sequence number still held in the ring.
func (b *Bus) oldest() uint64 {
	size := uint64(len(b.ring))
	if b.head <= size {
		return 0
	}
	return b.head - size
}

// Subscription is one observer's cursor into the bus. It must not be used from
// more than one goroutine at a time.
type Subscription struct {
	bus  *Bus
	next uint64
	once sync.Once
}

// Recv blocks until the next event is available. It returns a *LagError when
// events were skipped, ErrClosed after the bus closes, or the context error.
func (s *Subscription) Recv(ctx context.Context) (hunter.Event, error) {
	b := s.bus
	for {
		b.mu.Lock()
		if s.next < b.head {
			if oldest := b.oldest(); s.next < oldest {
				missed := oldest - s.next
				s.next = oldest
				b.mu.Unlock()
				telemetry.ObserveLagged(missed)
				return hunter.Event{}, &LagError{Missed: missed}
			}
			evt := b.ring[s.next%uint64(len(b.ring))]
			s.next++
			b.mu.Unlock()
			return evt, nil
		}
		if b.closed {
			b.mu.Unlock()
			return hunter.Event{}, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return hunter.Event{}, ctx.Err()
		case <-wait:
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		s.bus.subscribers--
		s.bus.mu.Unlock()
		telemetry.DecSubscribers()
	})
}
