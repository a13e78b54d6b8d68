package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/goodtune/reelfocus/internal/storage/bolt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 7, 10, 15, 0, 0, 0, time.Local)

func newTestRecorder(t *testing.T) (*Recorder, *clock.Test) {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "history.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewTest(now)
	return NewRecorder(store.History(), clk, 90, zerolog.Nop()), clk
}

func entry(pkg, name string, end time.Time, seconds, extensions int, completed bool) storage.HistoryEntry {
	return storage.HistoryEntry{
		AppPackage:      pkg,
		AppName:         name,
		StartTime:       end.Add(-time.Duration(seconds) * time.Second),
		EndTime:         end,
		DurationSeconds: seconds,
		LimitType:       storage.LimitTime,
		LimitValue:      1,
		ExtensionsUsed:  extensions,
		Completed:       completed,
	}
}

func record(t *testing.T, r *Recorder, entries ...storage.HistoryEntry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, r.RecordSession(context.Background(), e))
	}
}

func TestRecorder_RecordSessionFillsDefaults(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	record(t, r, storage.HistoryEntry{AppPackage: "com.a", AppName: "A", DurationSeconds: 60})

	entries, err := r.GetHistory(ctx, storage.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "2024-07-10", entries[0].Date)
	assert.True(t, entries[0].EndTime.Equal(now))
}

func TestRecorder_HistoryMostRecentFirst(t *testing.T) {
	r, _ := newTestRecorder(t)

	record(t, r,
		entry("com.a", "A", now.Add(-3*time.Hour), 60, 0, true),
		entry("com.b", "B", now.Add(-time.Hour), 30, 0, false),
		entry("com.a", "A", now.Add(-2*time.Hour), 90, 1, true),
	)

	entries, err := r.GetHistory(context.Background(), storage.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "com.b", entries[0].AppPackage)
	assert.Equal(t, 90, entries[1].DurationSeconds)
	assert.Equal(t, 60, entries[2].DurationSeconds)
}

func TestRecorder_PrunesOnWrite(t *testing.T) {
	r, _ := newTestRecorder(t)

	record(t, r,
		entry("com.a", "A", now.AddDate(0, 0, -120), 60, 0, true),
		entry("com.a", "A", now.AddDate(0, 0, -30), 60, 0, true),
	)

	entries, err := r.GetHistory(context.Background(), storage.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.DateKey(now.AddDate(0, 0, -30)), entries[0].Date)
}

func TestRecorder_GetDailyStats(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	record(t, r,
		entry("com.a", "A", now.Add(-3*time.Hour), 60, 0, true),
		entry("com.a", "A", now.Add(-2*time.Hour), 360, 1, true),
		entry("com.b", "B", now.Add(-time.Hour), 30, 0, false),
		entry("com.b", "B", now.AddDate(0, 0, -1), 45, 0, true),
	)

	stats, err := r.GetDailyStats(ctx, "2024-07-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-10", stats.Date)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 2, stats.CompletedSessions)
	assert.Equal(t, 450, stats.TotalTimeSeconds)
	assert.Equal(t, 1, stats.TotalExtensions)
	assert.Equal(t, map[string]storage.AppDayStats{
		"com.a": {AppName: "A", Sessions: 2, TotalTimeSeconds: 420, Extensions: 1},
		"com.b": {AppName: "B", Sessions: 1, TotalTimeSeconds: 30},
	}, stats.AppBreakdown)

	empty, err := r.GetDailyStats(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSessions)
	assert.NotNil(t, empty.AppBreakdown)

	_, err = r.GetDailyStats(ctx, "yesterday")
	assert.Error(t, err)
}

func TestRecorder_GetWeeklyStats(t *testing.T) {
	r, _ := newTestRecorder(t)

	record(t, r,
		entry("com.a", "A", now.Add(-time.Hour), 60, 0, true),
		entry("com.a", "A", now.AddDate(0, 0, -2), 120, 0, true),
		entry("com.a", "A", now.AddDate(0, 0, -9), 300, 0, true),
	)

	stats, err := r.GetWeeklyStats(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, stats, 7)
	assert.Equal(t, "2024-07-10", stats[0].Date)
	assert.Equal(t, "2024-07-04", stats[6].Date)
	assert.Equal(t, 60, stats[0].TotalTimeSeconds)
	assert.Equal(t, 0, stats[1].TotalSessions)
	assert.Equal(t, 120, stats[2].TotalTimeSeconds)

	total := 0
	for _, day := range stats {
		total += day.TotalTimeSeconds
	}
	assert.Equal(t, 180, total, "entries outside the window are ignored")

	longer, err := r.GetWeeklyStats(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, longer, 10)
	assert.Equal(t, 300, longer[9].TotalTimeSeconds)
}

func TestRecorder_GetAppTotalStats(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	record(t, r,
		entry("com.a", "A", now.AddDate(0, 0, -5), 60, 0, true),
		entry("com.a", "A", now.Add(-time.Hour), 360, 1, true),
		entry("com.b", "B", now.Add(-time.Minute), 30, 0, false),
	)

	stats, err := r.GetAppTotalStats(ctx, "com.a")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, storage.AppDayStats{AppName: "A", Sessions: 2, TotalTimeSeconds: 420, Extensions: 1}, *stats)

	missing, err := r.GetAppTotalStats(ctx, "com.unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecorder_ClearHistory(t *testing.T) {
	r, _ := newTestRecorder(t)
	ctx := context.Background()

	record(t, r, entry("com.a", "A", now, 60, 0, true))
	require.NoError(t, r.ClearHistory(ctx))

	entries, err := r.GetHistory(ctx, storage.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_PruneUsesClock(t *testing.T) {
	r, clk := newTestRecorder(t)
	ctx := context.Background()

	record(t, r, entry("com.a", "A", now.AddDate(0, 0, -80), 60, 0, true))

	clk.Advance(15 * 24 * time.Hour)
	deleted, err := r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
