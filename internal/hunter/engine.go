package hunter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/telemetry"
)

// Phase is the orchestrator's position in a session.
type Phase int32

// Session phases.
const (
	PhaseIdle Phase = iota
	PhaseSeeding
	PhaseDiscovering
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSeeding:
		return "seeding"
	case PhaseDiscovering:
		return "discovering"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Config tunes the orchestrator. Zero durations disable the matching pause or
// timeout.
type Config struct {
	RoundPause   time.Duration
	ItemPause    time.Duration
	FetchTimeout time.Duration

	SearchEndpoint     string
	GenericQuery       string
	Seeds              []Seed
	MasterRepositories []string

	BlockedDomains     []string
	MinCandidateLength int
}

// Engine drives crawl sessions. At most one session task runs its logic at a
// time; a task started right after a stop waits for its predecessor to unwind
// before touching shared state.
type Engine struct {
	cfg        Config
	state      *State
	fetcher    TextFetcher
	classifier Classifier
	publisher  Publisher
	clock      Clock
	ids        IDGenerator
	filter     *NoiseFilter
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	done          chan struct{}
	sessionCancel context.CancelFunc

	phase atomic.Int32
}

// NewEngine wires an orchestrator around the shared state and its collaborators.
func NewEngine(
	cfg Config,
	state *State,
	fetcher TextFetcher,
	classifier Classifier,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		state:      state,
		fetcher:    fetcher,
		classifier: classifier,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		filter:     NewNoiseFilter(engineBlocklist(cfg), cfg.MinCandidateLength),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// engineBlocklist adds the configured search provider's domain to the
// configured blocklist.
func engineBlocklist(cfg Config) []string {
	blocked := append([]string(nil), cfg.BlockedDomains...)
	if pattern := SearchProviderPattern(cfg.SearchEndpoint); pattern != "" {
		blocked = append(blocked, pattern)
	}
	return blocked
}

// State exposes the shared store the engine mutates.
func (e *Engine) State() *State {
	return e.state
}

// Phase reports the phase of the most recent session.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Start begins a session if none is running. It reports whether a new task
// was spawned.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return false
	}
	gen, ok := e.state.Begin()
	if !ok {
		return false
	}

	sctx, cancel := context.WithCancel(e.ctx)
	e.sessionCancel = cancel
	prev := e.done
	done := make(chan struct{})
	e.done = done

	go e.run(sctx, cancel, gen, prev, done)
	return true
}

// Stop clears the run flag and interrupts any in-flight fetch or pause. It
// reports whether a session was running.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	stopped := e.state.Stop()
	if e.sessionCancel != nil {
		e.sessionCancel()
	}
	return stopped
}

// Wait blocks until the latest session task has returned or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for crawl task: %w", ctx.Err())
	}
}

// Close stops the active session, refuses new ones and waits for the task.
func (e *Engine) Close(ctx context.Context) error {
	e.Stop()
	e.cancel()
	return e.Wait(ctx)
}

type session struct {
	id      string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	planner *planner
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, gen uint64, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	s := &session{
		id:      e.newSessionID(gen),
		gen:     gen,
		ctx:     ctx,
		cancel:  cancel,
		planner: newPlanner(e.cfg.SearchEndpoint, e.cfg.GenericQuery, e.cfg.MasterRepositories),
	}
	s.logger = e.logger.With(zap.String("session_id", s.id), zap.Uint64("generation", gen))

	defer e.finish(s)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("crawl task panicked", zap.Any("panic", r))
		}
	}()

	e.state.Reset()
	e.phase.Store(int32(PhaseSeeding))
	s.logger.Info("session started", zap.Int("target", e.state.Target()))
	e.log(s, LevelInfo, "Hunter protocol engaged. Starting search...")

	e.seed(s)

	e.phase.Store(int32(PhaseDiscovering))
	e.discover(s)
}

func (e *Engine) newSessionID(gen uint64) string {
	if e.ids != nil {
		id, err := e.ids.NewID()
		if err == nil {
			return id
		}
		e.logger.Warn("failed to generate session id", zap.Error(err))
	}
	return fmt.Sprintf("session-%d", gen)
}

// proceed is checked at every loop head and after every blocking call.
func (e *Engine) proceed(s *session) bool {
	return s.ctx.Err() == nil && e.state.Active(s.gen) && !e.state.TargetMet()
}

func (e *Engine) seed(s *session) {
	for _, sd := range e.cfg.Seeds {
		if !e.proceed(s) {
			return
		}
		if !e.state.Remember(sd.URL) {
			continue
		}
		e.addSource(s, sd.Source())
	}
}

func (e *Engine) discover(s *session) {
	for e.proceed(s) {
		plan := s.planner.next(e.state.Topics())
		e.log(s, plan.Level, plan.Announce)

		text := e.fetch(s, plan)
		for _, raw := range ExtractLinks(text) {
			if !e.proceed(s) {
				break
			}
			candidate, ok := e.filter.Accept(raw)
			if !ok {
				telemetry.ObserveCandidate("noise")
				continue
			}
			if !e.state.Remember(candidate) {
				telemetry.ObserveCandidate("duplicate")
				continue
			}
			telemetry.ObserveCandidate("accepted")

			e.log(s, LevelInfo, "Analyzing: "+candidate)
			src := e.classifier.Classify(s.ctx, candidate)
			if src.URL == "" {
				src.URL = candidate
			}
			e.addSource(s, src)
		}

		if !pause(s.ctx, e.cfg.RoundPause) {
			return
		}
	}
}

// fetch never fails the round: errors become an empty candidate list.
func (e *Engine) fetch(s *session, plan Plan) string {
	ctx := s.ctx
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := e.fetcher.FetchText(ctx, plan.URL)
	if err != nil {
		telemetry.ObserveFetch(string(plan.Strategy), telemetry.OutcomeError, time.Since(start))
		if s.ctx.Err() != nil {
			return ""
		}
		s.logger.Warn("round fetch failed",
			zap.String("strategy", string(plan.Strategy)),
			zap.String("url", plan.URL),
			zap.Error(err),
		)
		e.log(s, LevelWarn, "Fetch failed, skipping round: "+plan.URL)
		return ""
	}
	telemetry.ObserveFetch(string(plan.Strategy), telemetry.OutcomeOK, time.Since(start))
	return text
}

func (e *Engine) addSource(s *session, src Source) {
	if !e.proceed(s) {
		return
	}
	count := e.state.Append(src)
	now := e.clock.Now()
	e.emit(s, NewSourceEvent(now, src))
	e.emit(s, NewStatusEvent(now, e.state.Status(true)))
	s.logger.Debug("source added",
		zap.String("url", src.URL),
		zap.String("topic", src.Topic),
		zap.Int("count", count),
	)
	pause(s.ctx, e.cfg.ItemPause)
}

func (e *Engine) finish(s *session) {
	e.phase.Store(int32(PhaseStopped))
	count := e.state.Count()
	e.log(s, LevelSuccess, "Hunt complete.")
	e.emit(s, NewStatusEvent(e.clock.Now(), e.state.Status(false)))
	e.state.Finish(s.gen)
	s.cancel()
	s.logger.Info("session finished", zap.Int("count", count))
}

func (e *Engine) log(s *session, level Level, msg string) {
	e.emit(s, NewLogEvent(e.clock.Now(), level, msg))
}

func (e *Engine) emit(s *session, evt Event) {
	evt.SessionID = s.id
	e.publisher.Publish(evt)
}

// pause sleeps for d unless ctx ends first. It reports whether the full
// interval elapsed.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
