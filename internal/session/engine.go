// Package session drives the quota state machine from classifier ticks and
// user commands.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/rs/zerolog"
)

// Classifier produces one detection result per tick.
type Classifier interface {
	Classify(ctx context.Context, candidates []string) *detect.Result
}

// Gateway is the persistence gateway the engine reads at startup and on
// Start.
type Gateway interface {
	StateSaver
	LoadConfig(ctx context.Context) (storage.AppConfig, error)
	LoadSessionState(ctx context.Context, cfg storage.AppConfig) (storage.SessionState, error)
	CheckAndResetIfNewDay(ctx context.Context) (bool, error)
}

// Options configures the engine.
type Options struct {
	Rules           Rules
	ClassifyTimeout time.Duration
	AutoStart       bool
}

// Status is a point-in-time view of the engine.
type Status struct {
	Phase            Phase                `json:"phase"`
	Monitoring       bool                 `json:"monitoring"`
	State            storage.SessionState `json:"state"`
	AppName          string               `json:"app_name,omitempty"`
	Remaining        int                  `json:"remaining"`
	RemainingUnit    string               `json:"remaining_unit"`
	SessionLabel     string               `json:"session_label"`
	LimitDescription string               `json:"limit_description"`
	LastTick         time.Time            `json:"last_tick"`
}

// Engine serializes ticks and commands over one Machine.
type Engine struct {
	classifier Classifier
	gateway    Gateway
	persister  *Persister
	presenter  Presenter
	clock      clock.Clock
	opts       Options
	logger     zerolog.Logger
	root       zerolog.Logger

	mu      sync.Mutex
	machine *Machine

	lastTick atomic.Int64
}

// NewEngine creates an engine with default state. Call Restore before Run
// to load the persisted record.
func NewEngine(classifier Classifier, gateway Gateway, persister *Persister, presenter Presenter, clk clock.Clock, opts Options, logger zerolog.Logger) *Engine {
	opts.Rules = opts.Rules.withDefaults()
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = opts.Rules.TickInterval * 3 / 4
	}
	if presenter == nil {
		presenter = NewLogPresenter(logger)
	}

	return &Engine{
		classifier: classifier,
		gateway:    gateway,
		persister:  persister,
		presenter:  presenter,
		clock:      clk,
		opts:       opts,
		logger:     logger.With().Str("component", "engine").Logger(),
		root:       logger,
		machine:    NewMachine(storage.SessionState{CurrentSession: 1}, storage.AppConfig{}, opts.Rules, logger),
	}
}

// Restore applies the daily reset to the stored record, loads the
// configuration and the session record, and starts monitoring when
// configured to. A record saved while accruing is restored paused, since no
// time was observed while the process was down. Store failures fall back to
// defaults and are logged.
func (e *Engine) Restore(ctx context.Context) {
	if reset, err := e.gateway.CheckAndResetIfNewDay(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Stored daily reset check failed")
	} else if reset {
		e.logger.Info().Msg("Stored session record reset for the new day")
	}

	cfg, err := e.gateway.LoadConfig(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load config, using defaults")
	}

	state, err := e.gateway.LoadSessionState(ctx, cfg)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load session state, starting fresh")
	}

	now := e.clock.Now()
	var out Outcome
	if state.IsActive {
		state.IsActive = false
		if state.LastActivityTime.IsZero() {
			state.LastActivityTime = now
		}
		out.Persist = true
		e.logger.Info().
			Int("session", state.CurrentSession).
			Int("seconds", state.SecondsElapsed).
			Msg("Recovered active session as paused")
	}

	e.mu.Lock()
	e.machine = NewMachine(state, cfg, e.opts.Rules, e.root)
	// Covers a reset the store could not record
	if e.machine.ResetIfNewDay(now) {
		out.Persist = true
	}
	if e.opts.AutoStart {
		if err := e.machine.start(); err != nil {
			e.logger.Warn().Err(err).Msg("Not starting monitoring")
		}
	}
	snapshot := e.machine.State()
	e.queue(out, snapshot)
	e.mu.Unlock()

	e.logger.Info().
		Int("session", snapshot.CurrentSession).
		Int("max_sessions", snapshot.MaxSessions).
		Int("seconds", snapshot.SecondsElapsed).
		Bool("completed", snapshot.SessionCompleted).
		Msg("Session state restored")

	e.present(out)
}

// Run ticks at the configured interval until ctx is cancelled, then stops
// the session and flushes pending writes before returning.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Rules.TickInterval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", e.opts.Rules.TickInterval).Msg("Engine running")

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	out, _ := e.machine.Apply(e.clock.Now(), Command{Name: CommandStop})
	e.queue(out, e.machine.State())
	e.mu.Unlock()
	e.present(out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.persister.Flush(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to flush session state on shutdown")
		return
	}
	e.logger.Info().Msg("Engine stopped, session state flushed")
}

// Tick classifies and applies one tick. Classification runs outside the
// engine lock so commands are never held up by a slow detector.
func (e *Engine) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.TickPanics.Inc()
			e.logger.Error().Interface("panic", r).Msg("Recovered from panic in tick")
		}
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	monitoring, candidates := e.candidates()

	var result *detect.Result
	if monitoring && len(candidates) > 0 {
		classifyCtx, cancel := context.WithTimeout(ctx, e.opts.ClassifyTimeout)
		result = e.classifier.Classify(classifyCtx, candidates)
		cancel()
	}

	now, out, state, phase := e.applyTick(result)

	e.present(out)
	e.persister.Retry()
	e.lastTick.Store(now.UnixNano())

	metrics.TicksTotal.WithLabelValues(string(phase)).Inc()
	metrics.CurrentSession.Set(float64(state.CurrentSession))
	metrics.SecondsElapsed.Set(float64(state.SecondsElapsed))
	if state.IsActive {
		metrics.SessionActive.Set(1)
	} else {
		metrics.SessionActive.Set(0)
	}
}

func (e *Engine) candidates() (bool, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Monitoring(), e.machine.Config().EnabledPackages()
}

func (e *Engine) applyTick(result *detect.Result) (time.Time, Outcome, storage.SessionState, Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	out := e.machine.Tick(now, result)
	state := e.machine.State()
	e.queue(out, state)
	return now, out, state, e.machine.Phase(now)
}

// Submit applies a command between ticks. Invalid commands are acknowledged
// as rejected.
func (e *Engine) Submit(ctx context.Context, cmd Command) Ack {
	ack := Ack{Command: cmd.Name}

	if cmd.Name == CommandStart {
		// Start re-reads the configuration so edits made while stopped apply
		if err := e.ReloadConfig(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("Starting with previously loaded config")
		}
	}

	e.mu.Lock()
	out, err := e.machine.Apply(e.clock.Now(), cmd)
	e.queue(out, e.machine.State())
	e.mu.Unlock()

	result := "accepted"
	if err != nil {
		result = "rejected"
		ack.Reason = err.Error()
		if !errors.Is(err, ErrInvalidCommand) {
			result = "error"
		}
		e.logger.Debug().Err(err).Str("command", string(cmd.Name)).Msg("Command rejected")
	} else {
		ack.Accepted = true
	}
	metrics.CommandsTotal.WithLabelValues(string(cmd.Name), result).Inc()

	e.present(out)
	return ack
}

// ReloadConfig re-reads the configuration from the gateway.
func (e *Engine) ReloadConfig(ctx context.Context) error {
	cfg, err := e.gateway.LoadConfig(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.machine.SetConfig(cfg)
	e.mu.Unlock()
	return nil
}

// Snapshot returns the current status.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	m := e.machine
	status := Status{
		Phase:            m.Phase(now),
		Monitoring:       m.Monitoring(),
		State:            m.State(),
		Remaining:        m.Remaining(),
		RemainingUnit:    "seconds",
		SessionLabel:     m.sessionLabel(),
		LimitDescription: m.limitDescription(),
		LastTick:         e.LastTick(),
	}
	if m.state.LimitType == storage.LimitCount {
		status.RemainingUnit = "items"
	}
	if pkg := m.state.ActiveAppPackage; pkg != "" {
		status.AppName = m.cfg.AppName(pkg)
	}
	return status
}

// LastTick returns when the last tick completed.
func (e *Engine) LastTick() time.Time {
	n := e.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Healthy reports whether a tick completed within the given window.
func (e *Engine) Healthy(window time.Duration) bool {
	last := e.LastTick()
	return !last.IsZero() && e.clock.Now().Sub(last) <= window
}

// queue hands the outcome's writes to the persister. Callers hold e.mu, so
// states reach the persister in the order the machine produced them.
func (e *Engine) queue(out Outcome, state storage.SessionState) {
	for _, effect := range out.Effects {
		if rec, ok := effect.(RecordHistory); ok {
			e.persister.Record(rec.Entry)
		}
	}
	if out.Persist {
		e.persister.SaveState(state)
	}
}

// present hands every effect to the presenter after the lock is released.
func (e *Engine) present(out Outcome) {
	for _, effect := range out.Effects {
		e.presenter.Present(effect)
	}
}
