package hunter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Kind(kind EventKind) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

type stubFetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(url string) (string, error)
}

func (f *stubFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.fn == nil {
		return "", nil
	}
	return f.fn(url)
}

func (f *stubFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, url string) Source {
	return Source{URL: url, Topic: TopicOpenData, Description: "stub"}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "session-" + strings.Repeat("x", s.n), nil
}

func newTestEngine(t *testing.T, cfg Config, target int, fetcher TextFetcher) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	engine := NewEngine(cfg, NewState(target), fetcher, stubClassifier{}, rec, fixedClock{}, &seqIDs{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, engine.Close(ctx))
	})
	return engine, rec
}

func waitDone(t *testing.T, engine *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Wait(ctx))
}

func finalStatuses(events []Event) []Status {
	var out []Status
	for _, evt := range events {
		if evt.Kind == KindStatus && !evt.Status.Running {
			out = append(out, *evt.Status)
		}
	}
	return out
}

// TestEngineStopsWhenTargetMetDuringSeeding verifies seeds stop at the target and the session closes once.
func TestEngineStopsWhenTargetMetDuringSeeding(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	engine, rec := newTestEngine(t, Config{Seeds: DefaultSeeds}, 2, fetcher)

	require.True(t, engine.Start())
	waitDone(t, engine)

	sources := rec.Kind(KindSource)
	require.Len(t, sources, 2)
	require.Equal(t, DefaultSeeds[0].URL, sources[0].Source.URL)
	require.Equal(t, DefaultSeeds[1].URL, sources[1].Source.URL)

	final := finalStatuses(rec.Events())
	require.Len(t, final, 1)
	require.Equal(t, 2, final[0].Count)
	require.Equal(t, 2, final[0].Target)

	require.Empty(t, fetcher.Calls(), "target met before discovery")
	require.False(t, engine.State().Running())
	require.Equal(t, PhaseStopped, engine.Phase())
}

// TestEngineStartIsIdempotent asserts a second start while running spawns nothing.
func TestEngineStartIsIdempotent(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	fetcher := &stubFetcher{fn: func(string) (string, error) {
		<-block
		return "", nil
	}}
	engine, rec := newTestEngine(t, Config{RoundPause: time.Millisecond}, 100, fetcher)

	require.True(t, engine.Start())
	require.False(t, engine.Start())
	require.Eventually(t, func() bool { return len(fetcher.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, engine.Stop())
	close(block)
	waitDone(t, engine)

	var engaged int
	for _, evt := range rec.Kind(KindLog) {
		if strings.HasPrefix(evt.Log.Message, "Hunter protocol engaged") {
			engaged++
		}
	}
	require.Equal(t, 1, engaged)
	require.Len(t, finalStatuses(rec.Events()), 1)
}

// TestEngineStopWhileIdle checks stop on an idle engine is a silent no-op.
func TestEngineStopWhileIdle(t *testing.T) {
	t.Parallel()

	engine, rec := newTestEngine(t, Config{}, 10, &stubFetcher{})
	require.False(t, engine.Stop())
	require.Empty(t, rec.Events())
	require.Equal(t, PhaseIdle, engine.Phase())
}

// TestEngineDeduplicatesCandidates feeds repeated and noisy links and expects each URL once.
func TestEngineDeduplicatesCandidates(t *testing.T) {
	t.Parallel()

	page := strings.Join([]string{
		"https://data.example.gov/catalog.csv",
		"see https://data.example.gov/catalog.csv again,",
		"https://duckduckgo.com/y.js?ad_provider=foo",
		"https://short.io/a",
		"https://www.kaggle.com/datasets",
		"https://stats.example.edu/open/data.",
	}, "\n")
	fetcher := &stubFetcher{fn: func(string) (string, error) { return page, nil }}
	engine, rec := newTestEngine(t, Config{
		Seeds:          DefaultSeeds[:1],
		BlockedDomains: DefaultBlockedDomains,
		RoundPause:     time.Millisecond,
	}, 3, fetcher)

	require.True(t, engine.Start())
	waitDone(t, engine)

	var urls []string
	for _, evt := range rec.Kind(KindSource) {
		urls = append(urls, evt.Source.URL)
	}
	require.Equal(t, []string{
		"https://www.kaggle.com/datasets",
		"https://data.example.gov/catalog.csv",
		"https://stats.example.edu/open/data",
	}, urls)
}

// TestEngineStatusCountMonotonic ensures counts never decrease within a session and reset on restart.
func TestEngineStatusCountMonotonic(t *testing.T) {
	t.Parallel()

	engine, rec := newTestEngine(t, Config{Seeds: DefaultSeeds}, 4, &stubFetcher{})

	require.True(t, engine.Start())
	waitDone(t, engine)
	require.True(t, engine.Start())
	waitDone(t, engine)

	bySession := make(map[string][]int)
	var order []string
	for _, evt := range rec.Kind(KindStatus) {
		if _, ok := bySession[evt.SessionID]; !ok {
			order = append(order, evt.SessionID)
		}
		bySession[evt.SessionID] = append(bySession[evt.SessionID], evt.Status.Count)
	}
	require.Len(t, order, 2)
	for _, id := range order {
		counts := bySession[id]
		require.Equal(t, []int{1, 2, 3, 4, 4}, counts)
	}
	require.Equal(t, 4, engine.State().Count())
}

// TestEngineFetchFailureDoesNotAbortSession verifies a failing fetch is logged and the next round proceeds.
func TestEngineFetchFailureDoesNotAbortSession(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	fetcher := &stubFetcher{fn: func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "https://portal.example.org/datasets/one", nil
	}}
	engine, rec := newTestEngine(t, Config{RoundPause: time.Millisecond}, 1, fetcher)

	require.True(t, engine.Start())
	waitDone(t, engine)

	require.Len(t, rec.Kind(KindSource), 1)
	var warned bool
	for _, evt := range rec.Kind(KindLog) {
		if evt.Log.Level == LevelWarn && strings.HasPrefix(evt.Log.Message, "Fetch failed") {
			warned = true
		}
	}
	require.True(t, warned)
}

// TestEngineRoundRobinTopics checks custom topics drive the search queries in order.
func TestEngineRoundRobinTopics(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	engine, _ := newTestEngine(t, Config{
		SearchEndpoint:     "https://search.test/html/",
		MasterRepositories: []string{"https://index.test/README.md"},
		RoundPause:         time.Millisecond,
	}, 1, fetcher)
	engine.State().SetTopics([]string{"climate", "transit"})

	require.True(t, engine.Start())
	require.Eventually(t, func() bool { return len(fetcher.Calls()) >= 3 }, time.Second, time.Millisecond)
	engine.Stop()
	waitDone(t, engine)

	calls := fetcher.Calls()
	require.Equal(t, SearchURL("https://search.test/html/", TopicQuery("climate")), calls[0])
	require.Equal(t, SearchURL("https://search.test/html/", TopicQuery("transit")), calls[1])
	require.Equal(t, SearchURL("https://search.test/html/", TopicQuery("climate")), calls[2])
}

// TestEngineStopInterruptsPause ensures a stop during a long round pause ends the session promptly.
func TestEngineStopInterruptsPause(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	engine, rec := newTestEngine(t, Config{RoundPause: time.Hour}, 5, fetcher)

	require.True(t, engine.Start())
	require.Eventually(t, func() bool { return len(fetcher.Calls()) == 1 }, time.Second, time.Millisecond)
	require.True(t, engine.Stop())
	waitDone(t, engine)

	logs := rec.Kind(KindLog)
	require.Equal(t, LevelSuccess, logs[len(logs)-1].Log.Level)
	require.Len(t, finalStatuses(rec.Events()), 1)
}

// TestEngineRestartAfterStop checks a fresh start after stop clears the previous session's items.
func TestEngineRestartAfterStop(t *testing.T) {
	t.Parallel()

	engine, rec := newTestEngine(t, Config{Seeds: DefaultSeeds, RoundPause: time.Hour}, 100, &stubFetcher{})

	require.True(t, engine.Start())
	require.Eventually(t, func() bool { return engine.State().Count() == len(DefaultSeeds) }, time.Second, time.Millisecond)
	require.True(t, engine.Stop())
	require.True(t, engine.Start())
	require.Eventually(t, func() bool {
		return len(rec.Kind(KindSource)) == 2*len(DefaultSeeds)
	}, time.Second, time.Millisecond)

	require.Equal(t, len(DefaultSeeds), engine.State().Count())
	require.True(t, engine.State().Seen(DefaultSeeds[0].URL))

	sessions := make(map[string]int)
	for _, evt := range rec.Kind(KindSource) {
		sessions[evt.SessionID]++
	}
	require.Len(t, sessions, 2)
	require.Len(t, finalStatuses(rec.Events()), 1, "only the first session has ended")
}

// TestEngineCloseRefusesNewSessions verifies Close ends the task and blocks further starts.
func TestEngineCloseRefusesNewSessions(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	engine := NewEngine(Config{RoundPause: time.Hour}, NewState(10), &stubFetcher{}, stubClassifier{}, rec, fixedClock{}, &seqIDs{}, nil)
	require.True(t, engine.Start())
	require.NoError(t, engine.Close(context.Background()))
	require.False(t, engine.Start())
	require.False(t, engine.State().Running())
}

// gatedClassifier holds the call numbered gateAt until release is closed.
type gatedClassifier struct {
	mu      sync.Mutex
	calls   int
	gateAt  int
	reached chan struct{}
	release chan struct{}
}

func (c *gatedClassifier) Classify(_ context.Context, url string) Source {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if n == c.gateAt {
		close(c.reached)
		<-c.release
	}
	return Source{URL: url, Topic: TopicOpenData, Description: "gated"}
}

func (c *gatedClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// TestEngineLoweredTargetEndsDiscovery lowers the target to the current count mid-round
// and expects no further sources and a single closing status.
func TestEngineLoweredTargetEndsDiscovery(t *testing.T) {
	t.Parallel()

	page := strings.Join([]string{
		"https://portal.example.org/datasets/one",
		"https://portal.example.org/datasets/two",
		"https://portal.example.org/datasets/three",
		"https://portal.example.org/datasets/four",
	}, "\n")
	fetcher := &stubFetcher{fn: func(string) (string, error) { return page, nil }}
	classifier := &gatedClassifier{gateAt: 3, reached: make(chan struct{}), release: make(chan struct{})}
	rec := &recorder{}
	engine := NewEngine(Config{RoundPause: time.Millisecond}, NewState(100), fetcher, classifier, rec, fixedClock{}, &seqIDs{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, engine.Close(ctx))
	})

	require.True(t, engine.Start())
	select {
	case <-classifier.reached:
	case <-time.After(2 * time.Second):
		t.Fatal("third candidate never reached the classifier")
	}
	require.Equal(t, 2, engine.State().Count())
	engine.State().SetTarget(2)
	close(classifier.release)
	waitDone(t, engine)

	sources := rec.Kind(KindSource)
	require.Len(t, sources, 2)
	require.Equal(t, "https://portal.example.org/datasets/two", sources[1].Source.URL)
	require.Equal(t, 3, classifier.Calls())
	require.Len(t, fetcher.Calls(), 1)

	final := finalStatuses(rec.Events())
	require.Len(t, final, 1)
	require.Equal(t, Status{Running: false, Count: 2, Target: 2}, final[0])
	require.Equal(t, 2, engine.State().Count())
}

// TestEngineBlocksConfiguredSearchProvider ensures the configured provider's own links are noise
// even when it is not in the blocklist.
func TestEngineBlocksConfiguredSearchProvider(t *testing.T) {
	t.Parallel()

	page := strings.Join([]string{
		"https://search.test/html/?q=open+data&s=30",
		"https://help.search.test/settings/privacy",
		"https://portal.example.org/datasets/one",
	}, "\n")
	fetcher := &stubFetcher{fn: func(string) (string, error) { return page, nil }}
	engine, rec := newTestEngine(t, Config{
		SearchEndpoint: "https://search.test/html/",
		RoundPause:     time.Millisecond,
	}, 1, fetcher)

	require.True(t, engine.Start())
	waitDone(t, engine)

	sources := rec.Kind(KindSource)
	require.Len(t, sources, 1)
	require.Equal(t, "https://portal.example.org/datasets/one", sources[0].Source.URL)
}
