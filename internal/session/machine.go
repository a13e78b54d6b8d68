package session

import (
	"fmt"
	"time"

	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultGraceTicks is the number of empty ticks tolerated before pausing
	DefaultGraceTicks = 3

	// DefaultMinHistorySeconds is the minimum unrecorded time for a stopped
	// or abandoned session to be written to history
	DefaultMinHistorySeconds = 10

	// DefaultSecondsPerItem approximates how long one short video is watched
	DefaultSecondsPerItem = 15

	DefaultPersistEvery     = 5
	DefaultExtensionMinutes = 5
	DefaultBreakDuration    = 5 * time.Minute
	DefaultTickInterval     = time.Second
)

// Phase is the externally visible state of the session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseOnBreak   Phase = "on_break"
	PhaseBlocked   Phase = "blocked"
)

// Rules holds the engine tunables.
type Rules struct {
	TickInterval      time.Duration
	GraceTicks        int
	PersistEvery      int
	ExtensionMinutes  int
	BreakDuration     time.Duration
	MinHistorySeconds int
	SecondsPerItem    int
}

func (r Rules) withDefaults() Rules {
	if r.TickInterval <= 0 {
		r.TickInterval = DefaultTickInterval
	}
	if r.GraceTicks < 0 {
		r.GraceTicks = DefaultGraceTicks
	}
	if r.PersistEvery <= 0 {
		r.PersistEvery = DefaultPersistEvery
	}
	if r.ExtensionMinutes <= 0 {
		r.ExtensionMinutes = DefaultExtensionMinutes
	}
	if r.BreakDuration <= 0 {
		r.BreakDuration = DefaultBreakDuration
	}
	if r.MinHistorySeconds <= 0 {
		r.MinHistorySeconds = DefaultMinHistorySeconds
	}
	if r.SecondsPerItem <= 0 {
		r.SecondsPerItem = DefaultSecondsPerItem
	}
	return r
}

// DefaultRules returns the stock tunables.
func DefaultRules() Rules {
	return Rules{GraceTicks: DefaultGraceTicks}.withDefaults()
}

// Outcome is what one tick or command asks the engine to do.
type Outcome struct {
	Effects []Effect
	Persist bool
}

func (o *Outcome) emit(e Effect) {
	o.Effects = append(o.Effects, e)
}

// Machine owns the session record and applies ticks and commands to it.
// It is not safe for concurrent use; the engine serializes access.
type Machine struct {
	state storage.SessionState
	cfg   storage.AppConfig
	rules Rules

	logger zerolog.Logger

	monitoring bool

	// Seconds observed during the grace period, credited only if engagement
	// returns before the grace period runs out.
	missedTicks    int
	pendingSeconds int

	lastTimerUpdate time.Time
	unpersisted     int
}

// NewMachine creates a machine from a recovered session record.
func NewMachine(state storage.SessionState, cfg storage.AppConfig, rules Rules, logger zerolog.Logger) *Machine {
	return &Machine{
		state:  state,
		cfg:    cfg,
		rules:  rules.withDefaults(),
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// State returns a copy of the session record.
func (m *Machine) State() storage.SessionState { return m.state }

// Config returns the configuration in effect.
func (m *Machine) Config() storage.AppConfig { return m.cfg }

// Monitoring reports whether ticks are being evaluated.
func (m *Machine) Monitoring() bool { return m.monitoring }

// SetConfig swaps in a reloaded configuration. A session in progress keeps
// its limit until the next app switch; an unstarted one follows the new
// defaults immediately.
func (m *Machine) SetConfig(cfg storage.AppConfig) {
	m.cfg = cfg
	if !m.state.Started() {
		m.state.LimitType = cfg.DefaultLimitType
		m.state.LimitValue = cfg.DefaultLimitValue
		m.state.MaxSessions = cfg.MaxSessionsDaily
	}
}

// Phase derives the current phase from the record.
func (m *Machine) Phase(now time.Time) Phase {
	switch {
	case m.dailyCapReached():
		return PhaseBlocked
	case now.Before(m.state.BreakUntil):
		return PhaseOnBreak
	case m.state.SessionCompleted:
		return PhaseCompleted
	case m.state.IsActive:
		return PhaseActive
	case m.state.Started():
		return PhasePaused
	default:
		return PhaseIdle
	}
}

// ResetIfNewDay applies the calendar-day reset.
func (m *Machine) ResetIfNewDay(now time.Time) bool {
	if !m.state.ResetIfNewDay(now) {
		return false
	}
	m.logger.Info().
		Str("date", m.state.LastResetDate).
		Msg("Daily session counter reset")
	return true
}

// Tick applies one classification. A nil or non-engaged result means the
// user is not engaged with any monitored app.
func (m *Machine) Tick(now time.Time, result *detect.Result) Outcome {
	var out Outcome

	if m.ResetIfNewDay(now) {
		out.Persist = true
	}

	if !m.monitoring {
		return out
	}

	if result == nil || !result.Engaged || result.PackageID == "" {
		m.tickDisengaged(now, &out)
	} else {
		m.tickEngaged(now, result.PackageID, &out)
	}
	if out.Persist {
		m.unpersisted = 0
	}
	return out
}

func (m *Machine) tickDisengaged(now time.Time, out *Outcome) {
	if !m.state.IsActive {
		return
	}

	m.missedTicks++
	if m.missedTicks <= m.rules.GraceTicks {
		if m.shouldAccrue(now) {
			m.pendingSeconds++
			m.lastTimerUpdate = now
		}
		return
	}

	m.logger.Debug().
		Str("app", m.state.ActiveAppPackage).
		Int("seconds", m.state.SecondsElapsed).
		Int("discarded", m.pendingSeconds).
		Msg("Engagement lost, pausing session")
	m.pause(now, out)
}

func (m *Machine) tickEngaged(now time.Time, pkg string, out *Outcome) {
	m.missedTicks = 0

	if m.dailyCapReached() {
		if m.state.IsActive {
			m.pause(now, out)
		}
		metrics.BlockEvents.Inc()
		out.emit(ShowDailyBlock{
			AppName:      m.cfg.AppName(pkg),
			SessionLabel: m.sessionLabel(),
		})
		return
	}

	if now.Before(m.state.BreakUntil) {
		return
	}

	if !m.state.Started() {
		m.startSession(now, pkg, out)
		return
	}

	if !m.state.IsActive {
		m.tickFromPaused(now, pkg, out)
		return
	}

	if pkg != m.state.ActiveAppPackage {
		m.reattribute(pkg)
		out.Persist = true
	}

	m.creditPending()

	if m.shouldAccrue(now) {
		m.state.SecondsElapsed++
		m.lastTimerUpdate = now
		m.unpersisted++
		metrics.SessionSecondsTotal.WithLabelValues(pkg).Inc()
		if m.unpersisted >= m.rules.PersistEvery {
			out.Persist = true
		}
	}
	m.state.LastActivityTime = now

	if m.quotaReached() {
		m.complete(now, out)
		return
	}
	out.emit(m.overlay())
}

func (m *Machine) tickFromPaused(now time.Time, pkg string, out *Outcome) {
	gap := now.Sub(m.state.LastActivityTime)
	resetGap := time.Duration(m.cfg.SessionResetGapMinutes) * time.Minute

	if gap >= resetGap {
		if m.state.SessionCompleted {
			m.state.CurrentSession++
			m.state.SessionCompleted = false
			m.state.MaxSessions = m.cfg.MaxSessionsDaily
			if m.dailyCapReached() {
				out.Persist = true
				metrics.BlockEvents.Inc()
				out.emit(ShowDailyBlock{AppName: m.cfg.AppName(pkg), SessionLabel: m.sessionLabel()})
				return
			}
		} else {
			// The unfinished session is abandoned; whatever was not yet
			// recorded is written now.
			m.recordPartial(now, out)
		}
		m.startSession(now, pkg, out)
		return
	}

	if m.state.SessionCompleted {
		out.emit(m.interrupt())
		return
	}

	// Resume in place
	m.state.IsActive = true
	m.state.LastActivityTime = now
	if pkg != m.state.ActiveAppPackage {
		m.reattribute(pkg)
	}
	m.lastTimerUpdate = now
	out.Persist = true

	m.logger.Debug().
		Str("app", pkg).
		Dur("gap", gap).
		Int("seconds", m.state.SecondsElapsed).
		Msg("Resumed session")

	if m.quotaReached() {
		m.complete(now, out)
		return
	}
	out.emit(m.overlay())
}

func (m *Machine) startSession(now time.Time, pkg string, out *Outcome) {
	m.state.LimitType = m.cfg.DefaultLimitType
	m.state.LimitValue = m.cfg.LimitFor(pkg)
	m.state.ActiveAppPackage = pkg
	m.state.SecondsElapsed = 0
	m.state.RecordedSeconds = 0
	m.state.SessionStartTime = now
	m.state.LastActivityTime = now
	m.state.IsActive = true
	m.state.ExtensionUsed = false
	m.state.SessionCompleted = false
	m.state.MaxSessions = m.cfg.MaxSessionsDaily

	m.lastTimerUpdate = now
	m.pendingSeconds = 0
	m.unpersisted = 0
	out.Persist = true

	metrics.SessionsStarted.WithLabelValues(pkg).Inc()
	m.logger.Info().
		Str("app", pkg).
		Int("session", m.state.CurrentSession).
		Int("max_sessions", m.state.MaxSessions).
		Str("limit", m.limitDescription()).
		Msg("Started new session")

	out.emit(m.overlay())
}

// reattribute moves the running timer to another app. The cumulative time
// carries over; only the limit follows the new app.
func (m *Machine) reattribute(pkg string) {
	m.logger.Debug().
		Str("from", m.state.ActiveAppPackage).
		Str("to", pkg).
		Int("seconds", m.state.SecondsElapsed).
		Msg("Re-attributing session")

	m.state.ActiveAppPackage = pkg
	m.state.LimitType = m.cfg.DefaultLimitType
	m.state.LimitValue = m.cfg.LimitFor(pkg)
	if m.state.ExtensionUsed {
		m.state.LimitValue += m.extensionIncrement()
	}
}

func (m *Machine) creditPending() {
	if m.pendingSeconds == 0 {
		return
	}
	credit := m.pendingSeconds
	if room := m.thresholdSeconds() - m.state.SecondsElapsed; credit > room {
		credit = room
	}
	if credit > 0 {
		m.state.SecondsElapsed += credit
		m.unpersisted += credit
	}
	m.pendingSeconds = 0
}

func (m *Machine) pause(now time.Time, out *Outcome) {
	m.state.IsActive = false
	m.state.LastActivityTime = now
	m.missedTicks = 0
	m.pendingSeconds = 0
	m.unpersisted = 0
	out.Persist = true
	out.emit(HideOverlay{})
}

func (m *Machine) complete(now time.Time, out *Outcome) {
	m.state.SessionCompleted = true
	m.state.IsActive = false
	m.state.LastActivityTime = now
	m.missedTicks = 0
	m.pendingSeconds = 0
	m.unpersisted = 0
	out.Persist = true

	metrics.SessionsCompleted.WithLabelValues(m.state.ActiveAppPackage).Inc()
	m.logger.Info().
		Str("app", m.state.ActiveAppPackage).
		Int("session", m.state.CurrentSession).
		Int("seconds", m.state.SecondsElapsed).
		Msg("Session quota reached")

	m.record(now, true, out)
	out.emit(m.interrupt())
}

// recordPartial writes an unfinished session if enough unrecorded time
// has accrued.
func (m *Machine) recordPartial(now time.Time, out *Outcome) {
	if !m.state.Started() || m.state.SessionCompleted {
		return
	}
	if m.state.SecondsElapsed-m.state.RecordedSeconds < m.rules.MinHistorySeconds {
		return
	}
	m.record(now, false, out)
}

func (m *Machine) record(now time.Time, completed bool, out *Outcome) {
	extensions := 0
	if m.state.ExtensionUsed {
		extensions = 1
	}

	entry := storage.HistoryEntry{
		ID:              uuid.NewString(),
		AppName:         m.cfg.AppName(m.state.ActiveAppPackage),
		AppPackage:      m.state.ActiveAppPackage,
		StartTime:       m.state.SessionStartTime,
		EndTime:         now,
		DurationSeconds: m.state.SecondsElapsed - m.state.RecordedSeconds,
		LimitType:       m.state.LimitType,
		LimitValue:      m.state.LimitValue,
		ExtensionsUsed:  extensions,
		Completed:       completed,
		Date:            storage.DateKey(now),
	}
	m.state.RecordedSeconds = m.state.SecondsElapsed
	out.Persist = true
	out.emit(RecordHistory{Entry: entry})
}

// shouldAccrue guards against double counting when ticks arrive faster
// than the nominal interval.
func (m *Machine) shouldAccrue(now time.Time) bool {
	return m.lastTimerUpdate.IsZero() || now.Sub(m.lastTimerUpdate) >= m.rules.TickInterval/2
}

func (m *Machine) dailyCapReached() bool {
	s := m.state
	return s.CurrentSession > s.MaxSessions || (s.SessionCompleted && s.CurrentSession >= s.MaxSessions)
}

// thresholdSeconds is the elapsed time at which the quota is reached. COUNT
// limits are estimated at a fixed number of seconds per item.
func (m *Machine) thresholdSeconds() int {
	if m.state.LimitType == storage.LimitCount {
		return m.state.LimitValue * m.rules.SecondsPerItem
	}
	return m.state.LimitValue * 60
}

func (m *Machine) quotaReached() bool {
	if m.state.LimitType == storage.LimitCount {
		return m.state.SecondsElapsed/m.rules.SecondsPerItem >= m.state.LimitValue
	}
	return m.state.SecondsElapsed >= m.state.LimitValue*60
}

// Remaining returns what is left of the quota, in seconds for TIME limits
// and items for COUNT limits.
func (m *Machine) Remaining() int {
	var remaining int
	if m.state.LimitType == storage.LimitCount {
		remaining = m.state.LimitValue - m.state.SecondsElapsed/m.rules.SecondsPerItem
	} else {
		remaining = m.state.LimitValue*60 - m.state.SecondsElapsed
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (m *Machine) extensionIncrement() int {
	if m.state.LimitType == storage.LimitCount {
		return m.rules.ExtensionMinutes * 60 / m.rules.SecondsPerItem
	}
	return m.rules.ExtensionMinutes
}

func (m *Machine) sessionLabel() string {
	return fmt.Sprintf("Session %d of %d", m.state.CurrentSession, m.state.MaxSessions)
}

func (m *Machine) limitDescription() string {
	return fmt.Sprintf("%d %s", m.state.LimitValue, m.state.LimitType.Unit())
}

func (m *Machine) overlay() ShowOverlay {
	remaining := m.Remaining()
	warning := remaining < 60
	if m.state.LimitType == storage.LimitCount {
		warning = remaining < 3
	}
	return ShowOverlay{
		LimitType:    m.state.LimitType,
		Remaining:    remaining,
		SessionLabel: m.sessionLabel(),
		Warning:      warning,
	}
}

func (m *Machine) interrupt() ShowInterrupt {
	return ShowInterrupt{
		AppName:           m.cfg.AppName(m.state.ActiveAppPackage),
		LimitDescription:  m.limitDescription(),
		SessionLabel:      m.sessionLabel(),
		DailyLimitReached: m.state.CurrentSession >= m.state.MaxSessions,
	}
}
