package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/reelfocus/internal/api"
	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/config"
	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/history"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/session"
	"github.com/goodtune/reelfocus/internal/settings"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/goodtune/reelfocus/internal/storage/bolt"
	"github.com/goodtune/reelfocus/internal/storage/redis"
	"github.com/goodtune/reelfocus/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the ReelFocus session engine",
	Long: `Start the session engine together with the control API and the metrics
server. This is the default when no subcommand is given.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting ReelFocus")

	// Get systemd socket-activated listeners (if any)
	listeners, err := systemd.GetListeners()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get systemd listeners, will create own")
		listeners = &systemd.Listeners{}
	}
	if listeners.Activated {
		logger.Info().
			Bool("api", listeners.API != nil).
			Bool("metrics", listeners.Metrics != nil).
			Msg("Using systemd socket activation")
	}

	store, err := openStorage(cfg.Storage, cfg.History.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	clk := clock.Real{}
	gateway := settings.NewGateway(store.Settings(), clk, logger)
	recorder := history.NewRecorder(store.History(), clk, cfg.History.RetentionDays, logger)

	tickInterval := config.ParseDuration(cfg.Engine.TickInterval, session.DefaultTickInterval)

	// Detection tiers
	source, pushSource := usageSource(cfg.Detector, clk)
	detector, err := detect.NewDetector(source, clk, detect.DetectorOptions{
		QueryWindow:  config.ParseDuration(cfg.Detector.QueryWindow, 10*time.Second),
		Freshness:    config.ParseDuration(cfg.Detector.Freshness, 2*time.Second),
		CacheTTL:     config.ParseDuration(cfg.Detector.CacheTTL, 800*time.Millisecond),
		CacheSize:    cfg.Detector.CacheSize,
		QueryTimeout: config.ParseDuration(cfg.Detector.QueryTimeout, 500*time.Millisecond),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}

	signals := detect.NewSignalBoard()
	matcher := detect.NewPatternMatcher(detect.Screen{
		Width:  cfg.Detector.ScreenWidth,
		Height: cfg.Detector.ScreenHeight,
	})
	classifier := detect.NewClassifier(signals, detector, clk, detect.ClassifierOptions{
		PatternMinConfidence: cfg.Classifier.PatternMinConfidence,
		FallbackConfidence:   cfg.Classifier.FallbackConfidence,
		MaxPatternAge:        tickInterval,
	}, logger)

	logger.Info().
		Str("source", cfg.Detector.Source).
		Float64("pattern_min_confidence", cfg.Classifier.PatternMinConfidence).
		Msg("Classifier initialized")

	// Session engine
	events := api.NewBroadcaster(logger)
	persister := session.NewPersister(gateway, recorder, logger)
	presenter := session.MultiPresenter{session.NewLogPresenter(logger), events}

	engine := session.NewEngine(classifier, gateway, persister, presenter, clk, session.Options{
		Rules: session.Rules{
			TickInterval:      tickInterval,
			GraceTicks:        cfg.Engine.GraceTicks,
			PersistEvery:      cfg.Engine.PersistEvery,
			ExtensionMinutes:  cfg.Engine.ExtensionMinutes,
			BreakDuration:     config.ParseDuration(cfg.Engine.BreakDuration, session.DefaultBreakDuration),
			MinHistorySeconds: cfg.Engine.MinHistorySeconds,
			SecondsPerItem:    cfg.Engine.SecondsPerItem,
		},
		ClassifyTimeout: config.ParseDuration(cfg.Engine.ClassifyTimeout, 0),
		AutoStart:       cfg.Engine.AutoStart,
	}, logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	engine.Restore(startCtx)
	cancelStart()

	healthWindow := 5 * tickInterval
	ready := func() bool { return engine.Healthy(healthWindow) }

	// History retention
	retention, err := history.NewRetentionScheduler(recorder, clk, cfg.History.DailyResetTime, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()

	// Control API
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{
			ListenAddr:   fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
			RateLimit:    cfg.API.RateLimit,
			Burst:        cfg.API.Burst,
			HealthWindow: healthWindow,
		}, api.Deps{
			Engine:     engine,
			Settings:   gateway,
			History:    recorder,
			Permission: detector,
			Usage:      pushSource,
			Signals:    signals,
			Matcher:    matcher,
			Events:     events,
			Clock:      clk,
		}, logger)

		if listeners.API != nil {
			apiServer.SetListener(listeners.API)
		}
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	// Metrics
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, ready, logger)
	if listeners.Metrics != nil {
		metricsServer.SetListener(listeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Log level follows edits to the config file
	watcher := config.NewWatcher(configPath, logger, func(updated *config.Config) {
		zerolog.SetGlobalLevel(parseLevel(updated.Logging.Level))
		logger.Info().Str("level", updated.Logging.Level).Msg("Log level updated")
	})
	if err := watcher.Start(); err != nil {
		logger.Warn().Err(err).Msg("Config file watching disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return persister.Run(gctx) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		return systemd.RunWatchdog(gctx, systemd.WatchdogInterval(), ready, logger)
	})

	logger.Info().Msg("ReelFocus startup complete")
	if cfg.API.Enabled {
		logger.Info().Msgf("Control API: http://%s:%d/api", cfg.Server.BindAddress, cfg.Server.APIPort)
	}
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	underSystemd := systemd.IsSystemdService()
	if underSystemd {
		if err := systemd.NotifyReady(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
		}
		_ = systemd.NotifyStatus("Monitoring sessions")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	waitForShutdown(gctx, sigChan, engine, detector, underSystemd, logger)

	if underSystemd {
		if err := systemd.NotifyStopping(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Stop accepting commands before the engine takes its final snapshot
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping API server")
		}
	}

	cancel()
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Background task failed")
	}

	retention.Stop()

	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("ReelFocus stopped")
	return nil
}

// waitForShutdown blocks until a shutdown signal arrives or a background
// task fails. SIGHUP reloads the quota configuration from storage and drops
// cached foreground answers, since the candidate apps may have changed.
func waitForShutdown(ctx context.Context, sigChan <-chan os.Signal, engine *session.Engine, detector *detect.Detector, underSystemd bool, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Warn().Msg("Background task exited, shutting down")
			return
		case sig := <-sigChan:
			if sig != syscall.SIGHUP {
				logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
				return
			}

			logger.Info().Msg("SIGHUP received, reloading quota configuration...")
			if underSystemd {
				_ = systemd.NotifyReloading()
			}
			reloadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := engine.ReloadConfig(reloadCtx); err != nil {
				logger.Error().Err(err).Msg("Failed to reload quota configuration")
			} else {
				logger.Info().Msg("Quota configuration reloaded")
			}
			cancel()
			detector.ClearCache()
			if underSystemd {
				_ = systemd.NotifyReady()
			}
		}
	}
}

func openStorage(cfg config.StorageConfig, retentionDays int) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis, time.Duration(retentionDays)*24*time.Hour)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Type)
	}
}

// usageSource builds the foreground usage source. The push source is also
// returned so the API can feed it; it is nil for the command source.
func usageSource(cfg config.DetectorConfig, clk clock.Clock) (detect.UsageSource, *detect.PushSource) {
	if cfg.Source == "command" {
		return &detect.CommandSource{
			Command:           cfg.Command,
			Args:              cfg.Args,
			PermissionCommand: cfg.PermissionCommand,
			PermissionArgs:    cfg.PermissionArgs,
		}, nil
	}

	push := detect.NewPushSource(clk)
	return push, push
}
