package hunter

import (
	"context"
	"time"
)

// Publisher accepts events for fan-out. Implementations must never block the
// caller for long and must tolerate concurrent use.
type Publisher interface {
	Publish(evt Event)
}

// Fanout forwards every event to each member in order.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(evt Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(evt)
		}
	}
}

// TextFetcher retrieves the raw text of a search page or index document.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Classifier turns a candidate URL into a Source. It must not fail: the worst
// case is a generic placeholder.
type Classifier interface {
	Classify(ctx context.Context, url string) Source
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs.
type IDGenerator interface {
	NewID() (string, error)
}
