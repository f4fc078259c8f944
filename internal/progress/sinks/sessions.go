package sinks

import (
	"sync"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// sessionTracker remembers which sessions a sink has seen open.
type sessionTracker struct {
	mu   sync.Mutex
	live map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{live: make(map[string]struct{})}
}

func (t *sessionTracker) known(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live[id]
	return ok
}

// begin marks id live. It reports false if it already was.
func (t *sessionTracker) begin(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[id]; ok {
		return false
	}
	t.live[id] = struct{}{}
	return true
}

// end forgets id. It reports false if it was not live.
func (t *sessionTracker) end(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[id]; !ok {
		return false
	}
	delete(t.live, id)
	return true
}

// isFinal reports whether evt is the closing Status of a session.
func isFinal(evt hunter.Event) bool {
	return evt.Kind == hunter.KindStatus && evt.Status != nil && !evt.Status.Running && evt.SessionID != ""
}
