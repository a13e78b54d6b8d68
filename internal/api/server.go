// Package api serves the local control API used by the overlay agent and
// the reelfocus CLI.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/session"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Engine is the session engine as seen by the API.
type Engine interface {
	Snapshot() session.Status
	Submit(ctx context.Context, cmd session.Command) session.Ack
	ReloadConfig(ctx context.Context) error
	Healthy(window time.Duration) bool
}

// ConfigStore reads and writes the quota configuration.
type ConfigStore interface {
	LoadConfig(ctx context.Context) (storage.AppConfig, error)
	SaveConfig(ctx context.Context, cfg storage.AppConfig) error
}

// HistoryService serves the session log and its statistics.
type HistoryService interface {
	GetHistory(ctx context.Context, filter storage.HistoryFilter) ([]storage.HistoryEntry, error)
	GetDailyStats(ctx context.Context, date string) (storage.DailyStats, error)
	GetWeeklyStats(ctx context.Context, days int) ([]storage.DailyStats, error)
	GetAppTotalStats(ctx context.Context, packageID string) (*storage.AppDayStats, error)
	ClearHistory(ctx context.Context) error
}

// PermissionChecker reports whether usage data can be read.
type PermissionChecker interface {
	HasPermission(ctx context.Context) bool
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr   string
	RateLimit    float64
	Burst        int
	HealthWindow time.Duration
}

// Deps are the components the API drives. Usage is nil when foreground
// usage comes from a command source instead of agent pushes.
type Deps struct {
	Engine     Engine
	Settings   ConfigStore
	History    HistoryService
	Permission PermissionChecker
	Usage      *detect.PushSource
	Signals    *detect.SignalBoard
	Matcher    *detect.PatternMatcher
	Events     *Broadcaster
	Clock      clock.Clock
}

// Server is the control API HTTP server.
type Server struct {
	config      Config
	deps        Deps
	rateLimiter *RateLimiter
	router      *mux.Router
	server      *http.Server
	listener    net.Listener // Optional pre-created listener (for systemd socket activation)
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.HealthWindow <= 0 {
		cfg.HealthWindow = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Events == nil {
		deps.Events = NewBroadcaster(logger)
	}
	if deps.Signals == nil {
		deps.Signals = detect.NewSignalBoard()
	}
	if deps.Matcher == nil {
		deps.Matcher = detect.NewPatternMatcher(detect.Screen{})
	}

	s := &Server{
		config:      cfg,
		deps:        deps,
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.Burst),
		router:      mux.NewRouter(),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	// The event stream is long-lived, so there is no write timeout
	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(s.rateLimiter))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Session
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/commands/{command}", s.handleCommand).Methods("POST")
	api.HandleFunc("/events", s.deps.Events.HandleSSE).Methods("GET")

	// Detection inputs
	api.HandleFunc("/permission", s.handlePermission).Methods("GET")
	api.HandleFunc("/usage", s.handleUsage).Methods("POST")
	api.HandleFunc("/signals", s.handleSignal).Methods("POST")
	api.HandleFunc("/signals/tree", s.handleSignalTree).Methods("POST")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handlePutConfig).Methods("PUT")

	// History
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/stats/daily/{date}", s.handleDailyStats).Methods("GET")
	api.HandleFunc("/stats/weekly", s.handleWeeklyStats).Methods("GET")
	api.HandleFunc("/stats/apps/{package}", s.handleAppStats).Methods("GET")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting control API")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Control API server error")
		}
	}()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping control API")
	s.rateLimiter.Close()
	return s.server.Shutdown(ctx)
}
