package detect

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DetectorOptions tunes the foreground detector.
type DetectorOptions struct {
	QueryWindow  time.Duration // trailing window passed to the usage source
	Freshness    time.Duration // max age of the most recent use to count as foreground
	CacheTTL     time.Duration
	CacheSize    int
	QueryTimeout time.Duration
}

type cacheEntry struct {
	packageID string
	storedAt  time.Time
}

// Detector reports which candidate package is in the foreground. Positive
// answers are cached briefly per candidate set to bound query frequency.
type Detector struct {
	source UsageSource
	clock  clock.Clock
	opts   DetectorOptions
	logger zerolog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
}

// NewDetector creates a new foreground detector.
func NewDetector(source UsageSource, clk clock.Clock, opts DetectorOptions, logger zerolog.Logger) (*Detector, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 16
	}
	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Detector{
		source: source,
		clock:  clk,
		opts:   opts,
		logger: logger.With().Str("component", "detector").Logger(),
		cache:  cache,
	}, nil
}

func cacheKey(candidates []string) string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Detect returns the candidate package currently in the foreground. Any
// failure is reported as no detection.
func (d *Detector) Detect(ctx context.Context, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	key := cacheKey(candidates)
	now := d.clock.Now()

	d.mu.Lock()
	if entry, ok := d.cache.Get(key); ok && now.Sub(entry.storedAt) < d.opts.CacheTTL {
		d.mu.Unlock()
		metrics.DetectorCacheHits.Inc()
		return entry.packageID, true
	}
	d.mu.Unlock()
	metrics.DetectorCacheMisses.Inc()

	pkg, ok := d.query(ctx, candidates, now)
	if !ok {
		return "", false
	}

	d.mu.Lock()
	d.cache.Add(key, cacheEntry{packageID: pkg, storedAt: now})
	d.mu.Unlock()

	return pkg, true
}

func (d *Detector) query(ctx context.Context, candidates []string, now time.Time) (string, bool) {
	if d.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.QueryTimeout)
		defer cancel()
	}

	events, err := d.source.RecentUsage(ctx, now.Add(-d.opts.QueryWindow))
	if err != nil {
		d.recordError(err)
		return "", false
	}

	// The most recently used package is the foreground candidate, whether or
	// not it is monitored.
	var latest UsageEvent
	for _, event := range events {
		if event.LastUsed.After(latest.LastUsed) {
			latest = event
		}
	}
	if latest.PackageID == "" {
		return "", false
	}

	if age := now.Sub(latest.LastUsed); age > d.opts.Freshness {
		d.logger.Debug().
			Str("package", latest.PackageID).
			Dur("age", age).
			Msg("Most recent app is stale, not in foreground")
		return "", false
	}

	if !contains(candidates, latest.PackageID) {
		return "", false
	}
	return latest.PackageID, true
}

func (d *Detector) recordError(err error) {
	reason := "query"
	switch {
	case errors.Is(err, ErrPermissionDenied):
		reason = "permission"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}
	metrics.DetectorErrors.WithLabelValues(reason).Inc()
	d.logger.Debug().Err(err).Str("reason", reason).Msg("Foreground query failed")
}

// HasPermission reports whether the usage source can be queried. Errors are
// treated as no permission.
func (d *Detector) HasPermission(ctx context.Context) bool {
	if d.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.QueryTimeout)
		defer cancel()
	}

	ok, err := d.source.HasPermission(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Permission check failed")
		return false
	}
	return ok
}

// ClearCache forces the next Detect to query the source.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	d.cache.Purge()
	d.mu.Unlock()
}
