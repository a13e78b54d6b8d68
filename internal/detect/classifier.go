package detect

import (
	"context"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/rs/zerolog"
)

// PatternSource provides the latest pattern-based result, if any.
type PatternSource interface {
	Latest() (Result, bool)
}

// ForegroundDetector answers which candidate package is in the foreground.
type ForegroundDetector interface {
	Detect(ctx context.Context, candidates []string) (string, bool)
}

// ClassifierOptions holds the tier thresholds.
type ClassifierOptions struct {
	PatternMinConfidence float64
	FallbackConfidence   float64
	MaxPatternAge        time.Duration // one tick interval
}

// Classifier merges the pattern tier with the foreground fallback.
type Classifier struct {
	patterns PatternSource
	detector ForegroundDetector
	clock    clock.Clock
	opts     ClassifierOptions
	logger   zerolog.Logger
}

// NewClassifier creates a classifier. patterns may be nil.
func NewClassifier(patterns PatternSource, detector ForegroundDetector, clk clock.Clock, opts ClassifierOptions, logger zerolog.Logger) *Classifier {
	return &Classifier{
		patterns: patterns,
		detector: detector,
		clock:    clk,
		opts:     opts,
		logger:   logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify evaluates both tiers afresh and returns nil when neither yields
// a result for one of the candidates.
func (c *Classifier) Classify(ctx context.Context, candidates []string) *Result {
	if len(candidates) == 0 {
		metrics.DetectionsTotal.WithLabelValues(string(MethodNone)).Inc()
		return nil
	}

	now := c.clock.Now()

	if r, ok := c.patternResult(now, candidates); ok {
		metrics.DetectionsTotal.WithLabelValues(string(MethodPattern)).Inc()
		return &r
	}

	if pkg, ok := c.detector.Detect(ctx, candidates); ok {
		metrics.DetectionsTotal.WithLabelValues(string(MethodFallback)).Inc()
		return &Result{
			PackageID:  pkg,
			Engaged:    true,
			Confidence: c.opts.FallbackConfidence,
			Method:     MethodFallback,
			Timestamp:  now,
		}
	}

	metrics.DetectionsTotal.WithLabelValues(string(MethodNone)).Inc()
	return nil
}

func (c *Classifier) patternResult(now time.Time, candidates []string) (Result, bool) {
	if c.patterns == nil {
		return Result{}, false
	}
	r, ok := c.patterns.Latest()
	if !ok {
		return Result{}, false
	}

	age := now.Sub(r.Timestamp)
	if age < 0 || age >= c.opts.MaxPatternAge {
		return Result{}, false
	}
	if r.Confidence < c.opts.PatternMinConfidence || !contains(candidates, r.PackageID) {
		return Result{}, false
	}

	r.Method = MethodPattern
	return r, true
}
