package settings

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

func newTestGateway(t *testing.T, now time.Time) (*Gateway, *clock.Test, storage.Store) {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "settings.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewTest(now)
	return NewGateway(store.Settings(), clk, zerolog.Nop()), clk, store
}

func TestGateway_SeedsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	gw, _, store := newTestGateway(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	cfg, err := gw.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	initialized, err := store.Settings().Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)

	cfg.MaxSessionsDaily = 2
	require.NoError(t, gw.SaveConfig(ctx, cfg))

	again, err := gw.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.MaxSessionsDaily, "seeding must not overwrite a saved config")
}

func TestGateway_SaveConfigValidates(t *testing.T) {
	gw, _, _ := newTestGateway(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	cfg := DefaultConfig()
	cfg.DefaultLimitValue = 0
	assert.Error(t, gw.SaveConfig(context.Background(), cfg))
}

func TestGateway_ConfigAndStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	gw, _, _ := newTestGateway(t, now)

	custom := 7
	cfg := DefaultConfig()
	cfg.DefaultLimitType = storage.LimitCount
	cfg.MonitoredApps[1].CustomLimitValue = &custom
	cfg.MonitoredApps[2].Enabled = false
	require.NoError(t, gw.SaveConfig(ctx, cfg))

	loaded, err := gw.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	state := storage.SessionState{
		SecondsElapsed:   42,
		LimitValue:       7,
		LimitType:        storage.LimitCount,
		CurrentSession:   2,
		MaxSessions:      5,
		SessionStartTime: now.Add(-time.Minute),
		LastActivityTime: now,
		IsActive:         true,
		ExtensionUsed:    true,
		ActiveAppPackage: "com.instagram.android",
		LastResetDate:    storage.DateKey(now),
		RecordedSeconds:  10,
	}
	require.NoError(t, gw.SaveSessionState(ctx, state))

	got, err := gw.LoadSessionState(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestGateway_LoadSessionState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("empty store yields fresh state", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, now)
		state, err := gw.LoadSessionState(ctx, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, 1, state.CurrentSession)
		assert.Equal(t, 5, state.MaxSessions)
		assert.Equal(t, storage.LimitTime, state.LimitType)
		assert.False(t, state.Started())
		assert.Equal(t, "2024-06-01", state.LastResetDate)
	})

	t.Run("active session loads as saved", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, now)
		require.NoError(t, gw.SaveSessionState(ctx, storage.SessionState{
			SecondsElapsed:   30,
			LimitValue:       1,
			LimitType:        storage.LimitTime,
			CurrentSession:   1,
			MaxSessions:      5,
			IsActive:         true,
			SessionStartTime: now.Add(-30 * time.Second),
			LastActivityTime: now,
			ActiveAppPackage: "com.zhiliaoapp.musically",
			LastResetDate:    storage.DateKey(now),
		}))

		state, err := gw.LoadSessionState(ctx, DefaultConfig())
		require.NoError(t, err)
		assert.True(t, state.IsActive)
		assert.Equal(t, 30, state.SecondsElapsed)
	})

	t.Run("unstarted state follows config", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, now)
		require.NoError(t, gw.SaveSessionState(ctx, storage.NewSessionState(DefaultConfig(), now)))

		cfg := DefaultConfig()
		cfg.DefaultLimitValue = 15
		cfg.MaxSessionsDaily = 2
		state, err := gw.LoadSessionState(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, 15, state.LimitValue)
		assert.Equal(t, 2, state.MaxSessions)
	})
}

func TestGateway_CheckAndResetIfNewDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 22, 0, 0, 0, time.Local)
	gw, clk, _ := newTestGateway(t, now)

	state := storage.NewSessionState(DefaultConfig(), now)
	state.CurrentSession = 4
	require.NoError(t, gw.SaveSessionState(ctx, state))

	reset, err := gw.CheckAndResetIfNewDay(ctx)
	require.NoError(t, err)
	assert.False(t, reset)

	clk.Advance(4 * time.Hour)
	reset, err = gw.CheckAndResetIfNewDay(ctx)
	require.NoError(t, err)
	assert.True(t, reset)

	loaded, err := gw.LoadSessionState(ctx, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentSession)
	assert.Equal(t, storage.DateKey(clk.Now()), loaded.LastResetDate)
}
