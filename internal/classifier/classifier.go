// Package classifier turns candidate URLs into discovered sources, either with
// a local heuristic or through an external analysis service.
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
	"github.com/JakeFAU/data-hunter/internal/telemetry"
)

// DefaultMinKeyLength is the shortest credential treated as usable.
const DefaultMinKeyLength = 10

// limiterKey buckets every analysis call together regardless of the URL.
const limiterKey = "analyzer"

// Classification modes recorded in metrics.
const (
	modeHeuristic = "heuristic"
	modeRemote    = "remote"
	modeFallback  = "fallback"
)

// Analyzer describes what data a URL offers.
type Analyzer interface {
	Describe(ctx context.Context, url string) (string, error)
}

// Limiter paces analysis calls.
type Limiter interface {
	WaitKey(ctx context.Context, key string) error
}

// Config controls when the remote path is used.
type Config struct {
	APIKey       string
	MinKeyLength int
	Timeout      time.Duration
}

// Classifier implements hunter.Classifier.
type Classifier struct {
	analyzer Analyzer
	limiter  Limiter
	timeout  time.Duration
	remote   bool
	logger   *zap.Logger
}

var _ hunter.Classifier = (*Classifier)(nil)

// New returns a classifier. The remote path is enabled only when analyzer is
// set and the credential is at least MinKeyLength long.
func New(cfg Config, analyzer Analyzer, limiter Limiter, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	minLen := cfg.MinKeyLength
	if minLen <= 0 {
		minLen = DefaultMinKeyLength
	}
	return &Classifier{
		analyzer: analyzer,
		limiter:  limiter,
		timeout:  cfg.Timeout,
		remote:   analyzer != nil && len(cfg.APIKey) >= minLen,
		logger:   logger,
	}
}

// Remote reports whether classifications go to the external service.
func (c *Classifier) Remote() bool {
	return c.remote
}

// Classify never fails. Any remote error, timeout or panic degrades to the
// heuristic result.
func (c *Classifier) Classify(ctx context.Context, url string) (src hunter.Source) {
	if !c.remote {
		telemetry.ObserveClassification(modeHeuristic)
		return Heuristic(url)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("analyzer panicked", zap.String("url", url), zap.Any("panic", r))
			telemetry.ObserveClassification(modeFallback)
			src = Heuristic(url)
		}
	}()

	desc, err := c.describe(ctx, url)
	if err != nil {
		c.logger.Warn("remote analysis failed, using heuristic", zap.String("url", url), zap.Error(err))
		telemetry.ObserveClassification(modeFallback)
		return Heuristic(url)
	}
	telemetry.ObserveClassification(modeRemote)
	return hunter.Source{URL: url, Topic: TopicFor(url), Description: sanitizeDescription(desc)}
}

func (c *Classifier) describe(ctx context.Context, url string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.WaitKey(ctx, limiterKey); err != nil {
			return "", err
		}
	}
	desc, err := c.analyzer.Describe(ctx, url)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", url, err)
	}
	return desc, nil
}
