// Package settings is the persistence gateway between the session engine and
// the durable store.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/rs/zerolog"
)

// Gateway loads and saves the quota configuration and the session record.
type Gateway struct {
	store  storage.SettingsStore
	clock  clock.Clock
	logger zerolog.Logger
}

// NewGateway creates a new persistence gateway.
func NewGateway(store storage.SettingsStore, clk clock.Clock, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// LoadConfig returns the stored configuration, seeding defaults on first run.
// On a read failure it returns the defaults together with the error so the
// caller can keep running.
func (g *Gateway) LoadConfig(ctx context.Context) (storage.AppConfig, error) {
	initialized, err := g.store.Initialized(ctx)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load_config").Inc()
		return DefaultConfig(), fmt.Errorf("failed to read initialized flag: %w", err)
	}

	if !initialized {
		cfg := DefaultConfig()
		if err := g.store.PutConfig(ctx, cfg); err != nil {
			metrics.PersistenceFailures.WithLabelValues("seed_config").Inc()
			return cfg, fmt.Errorf("failed to seed default config: %w", err)
		}
		if err := g.store.MarkInitialized(ctx); err != nil {
			metrics.PersistenceFailures.WithLabelValues("seed_config").Inc()
			return cfg, fmt.Errorf("failed to mark store initialized: %w", err)
		}
		g.logger.Info().
			Int("apps", len(cfg.MonitoredApps)).
			Msg("Seeded default configuration")
		return cfg, nil
	}

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load_config").Inc()
		return DefaultConfig(), fmt.Errorf("failed to load config: %w", err)
	}
	return *cfg, nil
}

// SaveConfig validates and stores the configuration.
func (g *Gateway) SaveConfig(ctx context.Context, cfg storage.AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := g.store.PutConfig(ctx, cfg); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save_config").Inc()
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := g.store.MarkInitialized(ctx); err != nil {
		return fmt.Errorf("failed to mark store initialized: %w", err)
	}
	return nil
}

// LoadSessionState returns the stored session record as it was saved. An
// unstarted record picks up the current quota settings.
func (g *Gateway) LoadSessionState(ctx context.Context, cfg storage.AppConfig) (storage.SessionState, error) {
	state, err := g.store.GetSessionState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NewSessionState(cfg, g.clock.Now()), nil
	}
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load_state").Inc()
		return storage.NewSessionState(cfg, g.clock.Now()), fmt.Errorf("failed to load session state: %w", err)
	}

	if !state.Started() {
		state.LimitType = cfg.DefaultLimitType
		state.LimitValue = cfg.DefaultLimitValue
		state.MaxSessions = cfg.MaxSessionsDaily
	}
	if state.CurrentSession < 1 {
		state.CurrentSession = 1
	}

	return *state, nil
}

// SaveSessionState stores the session record as one atomic write.
func (g *Gateway) SaveSessionState(ctx context.Context, state storage.SessionState) error {
	if err := g.store.PutSessionState(ctx, state); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save_state").Inc()
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

// CheckAndResetIfNewDay applies the daily reset to the stored record and
// reports whether it happened.
func (g *Gateway) CheckAndResetIfNewDay(ctx context.Context) (bool, error) {
	cfg, err := g.LoadConfig(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Using default config for daily reset check")
	}

	state, err := g.LoadSessionState(ctx, cfg)
	if err != nil {
		return false, err
	}

	if !state.ResetIfNewDay(g.clock.Now()) {
		return false, nil
	}

	g.logger.Info().Str("date", state.LastResetDate).Msg("Daily session counter reset")
	return true, g.SaveSessionState(ctx, state)
}
