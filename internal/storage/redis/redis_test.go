package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/reelfocus/internal/config"
	"github.com/goodtune/reelfocus/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	return setupTestStoreWithRetention(t, 0)
}

func setupTestStoreWithRetention(t *testing.T, retention time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg, retention)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestSettingsStore_ConfigRoundTrip(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	if _, err := settings.GetConfig(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	custom := 45
	cfg := storage.AppConfig{
		MaxSessionsDaily:       4,
		SessionResetGapMinutes: 12,
		DefaultLimitType:       storage.LimitCount,
		DefaultLimitValue:      25,
		MonitoredApps: []storage.MonitoredApp{
			{PackageID: "com.zhiliaoapp.musically", DisplayName: "TikTok", Enabled: true},
			{PackageID: "com.instagram.android", DisplayName: "Instagram", Enabled: true, CustomLimitValue: &custom},
		},
	}

	if err := settings.PutConfig(ctx, cfg); err != nil {
		t.Fatalf("PutConfig failed: %v", err)
	}

	if got := mr.HGet(keyConfig, "default_limit_type"); got != "COUNT" {
		t.Errorf("Expected flat default_limit_type field COUNT, got %q", got)
	}

	retrieved, err := settings.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}

	if retrieved.MaxSessionsDaily != cfg.MaxSessionsDaily {
		t.Errorf("Expected MaxSessionsDaily %d, got %d", cfg.MaxSessionsDaily, retrieved.MaxSessionsDaily)
	}
	if retrieved.SessionResetGapMinutes != cfg.SessionResetGapMinutes {
		t.Errorf("Expected SessionResetGapMinutes %d, got %d", cfg.SessionResetGapMinutes, retrieved.SessionResetGapMinutes)
	}
	if retrieved.DefaultLimitType != cfg.DefaultLimitType || retrieved.DefaultLimitValue != cfg.DefaultLimitValue {
		t.Errorf("Expected default limit %s/%d, got %s/%d", cfg.DefaultLimitType, cfg.DefaultLimitValue, retrieved.DefaultLimitType, retrieved.DefaultLimitValue)
	}
	if len(retrieved.MonitoredApps) != 2 {
		t.Fatalf("Expected 2 monitored apps, got %d", len(retrieved.MonitoredApps))
	}
	if retrieved.MonitoredApps[1].CustomLimitValue == nil || *retrieved.MonitoredApps[1].CustomLimitValue != custom {
		t.Errorf("Expected custom limit %d for Instagram", custom)
	}
}

func TestSettingsStore_SessionStateRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)

	state := storage.SessionState{
		SecondsElapsed:   61,
		LimitValue:       1,
		LimitType:        storage.LimitTime,
		CurrentSession:   3,
		MaxSessions:      5,
		IsActive:         false,
		SessionStartTime: start,
		LastActivityTime: start.Add(61 * time.Second),
		SessionCompleted: true,
		ActiveAppPackage: "com.google.android.youtube",
		LastResetDate:    "2024-05-10",
		BreakUntil:       start.Add(10 * time.Minute),
		RecordedSeconds:  61,
	}

	if err := store.Settings().PutSessionState(ctx, state); err != nil {
		t.Fatalf("PutSessionState failed: %v", err)
	}

	retrieved, err := store.Settings().GetSessionState(ctx)
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}

	if retrieved.SecondsElapsed != state.SecondsElapsed || retrieved.RecordedSeconds != state.RecordedSeconds {
		t.Errorf("Expected seconds %d/%d, got %d/%d", state.SecondsElapsed, state.RecordedSeconds, retrieved.SecondsElapsed, retrieved.RecordedSeconds)
	}
	if retrieved.CurrentSession != 3 || retrieved.MaxSessions != 5 {
		t.Errorf("Unexpected session counters: %d/%d", retrieved.CurrentSession, retrieved.MaxSessions)
	}
	if retrieved.IsActive || !retrieved.SessionCompleted || retrieved.ExtensionUsed {
		t.Errorf("Unexpected flags: %+v", retrieved)
	}
	if !retrieved.SessionStartTime.Equal(state.SessionStartTime) {
		t.Errorf("Expected start %v, got %v", state.SessionStartTime, retrieved.SessionStartTime)
	}
	if !retrieved.BreakUntil.Equal(state.BreakUntil) {
		t.Errorf("Expected break until %v, got %v", state.BreakUntil, retrieved.BreakUntil)
	}
	if retrieved.ActiveAppPackage != state.ActiveAppPackage || retrieved.LastResetDate != state.LastResetDate {
		t.Errorf("Unexpected app/date: %s %s", retrieved.ActiveAppPackage, retrieved.LastResetDate)
	}
}

func TestSettingsStore_ZeroTimesStayZero(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	state := storage.SessionState{LimitType: storage.LimitTime, CurrentSession: 1, MaxSessions: 5, LimitValue: 1}

	if err := store.Settings().PutSessionState(ctx, state); err != nil {
		t.Fatalf("PutSessionState failed: %v", err)
	}

	retrieved, err := store.Settings().GetSessionState(ctx)
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}
	if !retrieved.SessionStartTime.IsZero() || !retrieved.LastActivityTime.IsZero() || !retrieved.BreakUntil.IsZero() {
		t.Errorf("Expected zero times, got %+v", retrieved)
	}
}

func TestSettingsStore_Initialized(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	initialized, err := store.Settings().Initialized(ctx)
	if err != nil {
		t.Fatalf("Initialized failed: %v", err)
	}
	if initialized {
		t.Error("Expected fresh store to be uninitialized")
	}

	if err := store.Settings().MarkInitialized(ctx); err != nil {
		t.Fatalf("MarkInitialized failed: %v", err)
	}

	initialized, err = store.Settings().Initialized(ctx)
	if err != nil {
		t.Fatalf("Initialized failed: %v", err)
	}
	if !initialized {
		t.Error("Expected store to be initialized")
	}
}

func TestHistoryStore_ListAndDelete(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	history := store.History()
	now := time.Now()

	entries := []storage.HistoryEntry{
		{ID: "old", AppPackage: "com.a", AppName: "A", StartTime: now.AddDate(0, 0, -100), EndTime: now.AddDate(0, 0, -100), DurationSeconds: 60, LimitType: storage.LimitTime, LimitValue: 1, Completed: true, Date: storage.DateKey(now.AddDate(0, 0, -100))},
		{ID: "mid", AppPackage: "com.b", AppName: "B", StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-2 * time.Hour), DurationSeconds: 30, LimitType: storage.LimitTime, LimitValue: 1, Date: storage.DateKey(now.Add(-2 * time.Hour))},
		{ID: "new", AppPackage: "com.a", AppName: "A", StartTime: now.Add(-time.Minute), EndTime: now, DurationSeconds: 60, LimitType: storage.LimitTime, LimitValue: 1, ExtensionsUsed: 1, Completed: true, Date: storage.DateKey(now)},
	}

	for _, entry := range entries {
		if err := history.Append(ctx, entry); err != nil {
			t.Fatalf("Append %s failed: %v", entry.ID, err)
		}
	}

	all, err := history.List(ctx, storage.HistoryFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("Expected most recent first, got %s..%s", all[0].ID, all[2].ID)
	}
	if all[0].ExtensionsUsed != 1 || !all[0].Completed {
		t.Errorf("Unexpected entry fields: %+v", all[0])
	}

	appOnly, err := history.List(ctx, storage.HistoryFilter{AppPackage: "com.a", Limit: 1})
	if err != nil {
		t.Fatalf("List with filter failed: %v", err)
	}
	if len(appOnly) != 1 || appOnly[0].ID != "new" {
		t.Errorf("Expected only newest com.a entry, got %+v", appOnly)
	}

	deleted, err := history.DeleteBefore(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted entry, got %d", deleted)
	}
	if mr.Exists(entryKey("old")) {
		t.Error("Expected old entry hash to be removed")
	}

	if err := history.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	remaining, err := history.List(ctx, storage.HistoryFilter{})
	if err != nil {
		t.Fatalf("List after clear failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(remaining))
	}
}

func TestHistoryStore_EntryTTLFollowsRetention(t *testing.T) {
	tests := []struct {
		name      string
		retention time.Duration
		want      time.Duration
	}{
		{name: "configured retention", retention: 120 * 24 * time.Hour, want: 120 * 24 * time.Hour},
		{name: "short retention", retention: 7 * 24 * time.Hour, want: 7 * 24 * time.Hour},
		{name: "unset retention", retention: 0, want: DefaultHistoryTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := setupTestStoreWithRetention(t, tt.retention)
			defer func() { _ = store.Close() }()

			now := time.Now()
			entry := storage.HistoryEntry{
				ID: "ttl", AppPackage: "com.a", AppName: "A",
				StartTime: now.Add(-time.Minute), EndTime: now, DurationSeconds: 60,
				LimitType: storage.LimitTime, LimitValue: 1, Date: storage.DateKey(now),
			}
			if err := store.History().Append(context.Background(), entry); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			if got := mr.TTL(entryKey("ttl")); got != tt.want {
				t.Errorf("Expected entry TTL %v, got %v", tt.want, got)
			}
		})
	}
}
