package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tick metrics
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_ticks_total",
			Help: "Total engine ticks by outcome phase",
		},
		[]string{"phase"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelfocus_tick_duration_seconds",
			Help:    "Time spent classifying and applying one tick",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	TickPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_tick_panics_total",
			Help: "Ticks aborted by a recovered panic",
		},
	)

	// Detection metrics
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_detections_total",
			Help: "Classifier results by detection method",
		},
		[]string{"method"},
	)

	DetectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_detector_errors_total",
			Help: "Foreground detector failures",
		},
		[]string{"reason"},
	)

	DetectorCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_detector_cache_hits_total",
			Help: "Foreground detector cache hits",
		},
	)

	DetectorCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_detector_cache_misses_total",
			Help: "Foreground detector cache misses",
		},
	)

	// Session metrics
	SessionSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_session_seconds_total",
			Help: "Engaged seconds accrued against a quota",
		},
		[]string{"app"},
	)

	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_sessions_started_total",
			Help: "Sessions started",
		},
		[]string{"app"},
	)

	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_sessions_completed_total",
			Help: "Sessions that reached their quota",
		},
		[]string{"app"},
	)

	ExtensionsGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_extensions_granted_total",
			Help: "One-time session extensions granted",
		},
	)

	BlockEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_daily_block_events_total",
			Help: "Engaged ticks routed to the daily block",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_commands_total",
			Help: "Commands submitted to the engine",
		},
		[]string{"command", "result"},
	)

	CurrentSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfocus_current_session",
			Help: "Daily session counter",
		},
	)

	SecondsElapsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfocus_session_seconds_elapsed",
			Help: "Seconds accrued in the current session",
		},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfocus_session_active",
			Help: "1 while the session timer is accruing",
		},
	)

	// Persistence metrics
	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_persistence_failures_total",
			Help: "Failed store operations",
		},
		[]string{"operation"},
	)

	HistoryPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfocus_history_pruned_total",
			Help: "History entries removed by retention",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfocus_api_requests_total",
			Help: "Control API requests",
		},
		[]string{"method", "code"},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfocus_event_subscribers",
			Help: "Connected effect stream clients",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TicksTotal,
		TickDuration,
		TickPanics,
		DetectionsTotal,
		DetectorErrors,
		DetectorCacheHits,
		DetectorCacheMisses,
		SessionSecondsTotal,
		SessionsStarted,
		SessionsCompleted,
		ExtensionsGranted,
		BlockEvents,
		CommandsTotal,
		CurrentSession,
		SecondsElapsed,
		SessionActive,
		PersistenceFailures,
		HistoryPruned,
		APIRequestsTotal,
		EventSubscribers,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. ready reports whether the engine
// has completed at least one tick recently; nil means always ready.
func NewServer(addr string, ready func() bool, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("STALLED"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's routes for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
