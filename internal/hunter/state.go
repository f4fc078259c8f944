package hunter

import "sync"

// State holds the mutable facts shared by command handlers and the crawl
// task. Each field has its own lock and no method holds more than one lock at
// a time, so cross-field reads are only eventually consistent: a Status may
// pair a fresh count with a target that a concurrent config update is about
// to replace.
type State struct {
	runMu      sync.Mutex
	running    bool
	generation uint64

	sourcesMu sync.RWMutex
	sources   []Source

	historyMu sync.Mutex
	history   map[string]struct{}

	targetMu sync.RWMutex
	target   int

	topicsMu sync.RWMutex
	topics   []string
}

// NewState returns an idle State with the given target.
func NewState(target int) *State {
	if target < 0 {
		target = 0
	}
	return &State{
		history: make(map[string]struct{}),
		target:  target,
	}
}

// Running reports whether a session is active.
func (s *State) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Begin flips the run flag from false to true and returns the new session
// generation. It returns false when a session is already running; that check
// and the flip happen under the same lock, so concurrent callers cannot both
// win.
func (s *State) Begin() (uint64, bool) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return 0, false
	}
	s.running = true
	s.generation++
	return s.generation, true
}

// Active reports whether gen is the current generation and still running.
func (s *State) Active(gen uint64) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running && s.generation == gen
}

// Stop clears the run flag. It reports whether the flag changed.
func (s *State) Stop() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	was := s.running
	s.running = false
	return was
}

// Finish clears the run flag on behalf of session gen. A session that has
// already been superseded by a newer one leaves the flag alone.
func (s *State) Finish(gen uint64) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.generation == gen {
		s.running = false
	}
}

// Reset clears the item list and the history set for a fresh session.
func (s *State) Reset() {
	s.sourcesMu.Lock()
	s.sources = nil
	s.sourcesMu.Unlock()

	s.historyMu.Lock()
	s.history = make(map[string]struct{})
	s.historyMu.Unlock()
}

// Sources returns a copy of the discovered items in discovery order.
func (s *State) Sources() []Source {
	s.sourcesMu.RLock()
	defer s.sourcesMu.RUnlock()
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Count returns the number of discovered items.
func (s *State) Count() int {
	s.sourcesMu.RLock()
	defer s.sourcesMu.RUnlock()
	return len(s.sources)
}

// Append adds a discovered item and returns the new count.
func (s *State) Append(src Source) int {
	s.sourcesMu.Lock()
	defer s.sourcesMu.Unlock()
	s.sources = append(s.sources, src)
	return len(s.sources)
}

// Remember inserts url into the history set. It returns false when the URL
// had already been seen this session.
func (s *State) Remember(url string) bool {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if _, seen := s.history[url]; seen {
		return false
	}
	s.history[url] = struct{}{}
	return true
}

// Seen reports whether url is in the history set.
func (s *State) Seen(url string) bool {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	_, seen := s.history[url]
	return seen
}

// Target returns the stop threshold.
func (s *State) Target() int {
	s.targetMu.RLock()
	defer s.targetMu.RUnlock()
	return s.target
}

// SetTarget replaces the stop threshold. Negative values clamp to zero.
func (s *State) SetTarget(target int) {
	if target < 0 {
		target = 0
	}
	s.targetMu.Lock()
	defer s.targetMu.Unlock()
	s.target = target
}

// TargetMet reports whether the discovered count has reached the target.
func (s *State) TargetMet() bool {
	return s.Count() >= s.Target()
}

// Topics returns a copy of the custom topic list.
func (s *State) Topics() []string {
	s.topicsMu.RLock()
	defer s.topicsMu.RUnlock()
	if len(s.topics) == 0 {
		return nil
	}
	out := make([]string, len(s.topics))
	copy(out, s.topics)
	return out
}

// SetTopics replaces the custom topic list. An empty list reverts the
// orchestrator to its built-in strategies.
func (s *State) SetTopics(topics []string) {
	var cp []string
	if len(topics) > 0 {
		cp = make([]string, len(topics))
		copy(cp, topics)
	}
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()
	s.topics = cp
}

// HasTopics reports whether custom topics are loaded.
func (s *State) HasTopics() bool {
	s.topicsMu.RLock()
	defer s.topicsMu.RUnlock()
	return len(s.topics) > 0
}

// Status assembles a snapshot from the individual fields.
func (s *State) Status(running bool) Status {
	return Status{
		Running:         running,
		Count:           s.Count(),
		Target:          s.Target(),
		HasCustomTopics: s.HasTopics(),
	}
}
