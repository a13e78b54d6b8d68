// Package history records finished sessions and aggregates them into
// daily, weekly and per-app statistics.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetentionDays is how long history entries are kept
	DefaultRetentionDays = 90

	// DefaultWeeklyDays is the window of GetWeeklyStats when none is given
	DefaultWeeklyDays = 7
)

// Recorder manages the session history log
type Recorder struct {
	store         storage.HistoryStore
	clock         clock.Clock
	retentionDays int
	logger        zerolog.Logger
}

// NewRecorder creates a new history recorder
func NewRecorder(store storage.HistoryStore, clk clock.Clock, retentionDays int, logger zerolog.Logger) *Recorder {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Recorder{
		store:         store,
		clock:         clk,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "history").Logger(),
	}
}

// RecordSession appends a session to history and prunes entries that fell
// out of the retention window.
func (r *Recorder) RecordSession(ctx context.Context, entry storage.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.EndTime.IsZero() {
		entry.EndTime = r.clock.Now()
	}
	if entry.Date == "" {
		entry.Date = storage.DateKey(entry.EndTime)
	}

	if err := r.store.Append(ctx, entry); err != nil {
		metrics.PersistenceFailures.WithLabelValues("record_history").Inc()
		return fmt.Errorf("failed to record session: %w", err)
	}

	r.logger.Debug().
		Str("id", entry.ID).
		Str("app", entry.AppPackage).
		Int("duration_seconds", entry.DurationSeconds).
		Bool("completed", entry.Completed).
		Msg("Recorded session")

	if _, err := r.Prune(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to prune history")
	}
	return nil
}

// Prune removes entries older than the retention window.
func (r *Recorder) Prune(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().AddDate(0, 0, -r.retentionDays)
	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("prune_history").Inc()
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	if deleted > 0 {
		metrics.HistoryPruned.Add(float64(deleted))
		r.logger.Info().
			Int("deleted", deleted).
			Str("cutoff_date", storage.DateKey(cutoff)).
			Msg("Pruned old history")
	}
	return deleted, nil
}

// GetHistory lists entries, most recent first.
func (r *Recorder) GetHistory(ctx context.Context, filter storage.HistoryFilter) ([]storage.HistoryEntry, error) {
	return r.store.List(ctx, filter)
}

// GetDailyStats aggregates the sessions recorded on date (YYYY-MM-DD).
func (r *Recorder) GetDailyStats(ctx context.Context, date string) (storage.DailyStats, error) {
	if _, err := time.ParseInLocation(storage.DateLayout, date, time.Local); err != nil {
		return storage.DailyStats{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	entries, err := r.store.List(ctx, storage.HistoryFilter{Date: date})
	if err != nil {
		return storage.DailyStats{}, err
	}
	return aggregateDay(date, entries), nil
}

// GetWeeklyStats returns one DailyStats per day for the last days days,
// today first.
func (r *Recorder) GetWeeklyStats(ctx context.Context, days int) ([]storage.DailyStats, error) {
	if days <= 0 {
		days = DefaultWeeklyDays
	}

	now := r.clock.Now()
	oldest := time.Date(now.Year(), now.Month(), now.Day()-(days-1), 0, 0, 0, 0, now.Location())
	entries, err := r.store.List(ctx, storage.HistoryFilter{Since: &oldest})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]storage.HistoryEntry)
	for _, entry := range entries {
		byDate[entry.Date] = append(byDate[entry.Date], entry)
	}

	stats := make([]storage.DailyStats, 0, days)
	for i := 0; i < days; i++ {
		date := storage.DateKey(now.AddDate(0, 0, -i))
		stats = append(stats, aggregateDay(date, byDate[date]))
	}
	return stats, nil
}

// GetAppTotalStats returns all-time totals for one app, or nil if the app
// has no recorded sessions.
func (r *Recorder) GetAppTotalStats(ctx context.Context, packageID string) (*storage.AppDayStats, error) {
	entries, err := r.store.List(ctx, storage.HistoryFilter{AppPackage: packageID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	stats := aggregateApp(entries)
	return &stats, nil
}

// ClearHistory removes every entry.
func (r *Recorder) ClearHistory(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	r.logger.Info().Msg("History cleared")
	return nil
}

func aggregateDay(date string, entries []storage.HistoryEntry) storage.DailyStats {
	stats := storage.DailyStats{
		Date:         date,
		AppBreakdown: make(map[string]storage.AppDayStats),
	}

	byApp := make(map[string][]storage.HistoryEntry)
	for _, entry := range entries {
		stats.TotalSessions++
		if entry.Completed {
			stats.CompletedSessions++
		}
		stats.TotalTimeSeconds += entry.DurationSeconds
		stats.TotalExtensions += entry.ExtensionsUsed
		byApp[entry.AppPackage] = append(byApp[entry.AppPackage], entry)
	}
	for pkg, appEntries := range byApp {
		stats.AppBreakdown[pkg] = aggregateApp(appEntries)
	}
	return stats
}

// aggregateApp sums entries of a single app. The display name is taken from
// the most recent entry.
func aggregateApp(entries []storage.HistoryEntry) storage.AppDayStats {
	stats := storage.AppDayStats{AppName: entries[0].AppName}
	for _, entry := range entries {
		stats.Sessions++
		stats.TotalTimeSeconds += entry.DurationSeconds
		stats.Extensions += entry.ExtensionsUsed
	}
	return stats
}
