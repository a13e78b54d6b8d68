package session

import (
	"time"

	"github.com/goodtune/reelfocus/internal/metrics"
)

// Apply executes a command. A rejected command leaves the record untouched
// and returns an error wrapping ErrInvalidCommand.
func (m *Machine) Apply(now time.Time, cmd Command) (Outcome, error) {
	var out Outcome

	if m.ResetIfNewDay(now) {
		out.Persist = true
	}

	var err error
	switch cmd.Name {
	case CommandStart:
		err = m.start()
	case CommandStop:
		m.stop(now, &out)
	case CommandExtend:
		err = m.extend(now, &out)
	case CommandNextSession:
		err = m.nextSession(&out)
	case CommandTakeBreak:
		m.takeBreak(now, cmd.Duration, &out)
	default:
		_, err = ParseCommandName(string(cmd.Name))
	}
	return out, err
}

func (m *Machine) start() error {
	if len(m.cfg.EnabledPackages()) == 0 {
		return ErrNoMonitoredApps
	}
	if !m.monitoring {
		m.logger.Info().
			Strs("apps", m.cfg.EnabledPackages()).
			Msg("Monitoring started")
	}
	m.monitoring = true
	return nil
}

// stop pauses the timer and records the unfinished part of the session.
func (m *Machine) stop(now time.Time, out *Outcome) {
	if m.state.IsActive {
		m.state.IsActive = false
		m.state.LastActivityTime = now
	}
	m.recordPartial(now, out)

	m.missedTicks = 0
	m.pendingSeconds = 0
	m.unpersisted = 0
	if m.monitoring {
		m.logger.Info().
			Int("session", m.state.CurrentSession).
			Int("seconds", m.state.SecondsElapsed).
			Msg("Monitoring stopped")
	}
	m.monitoring = false

	out.Persist = true
	out.emit(HideOverlay{})
}

func (m *Machine) extend(now time.Time, out *Outcome) error {
	switch {
	case !m.monitoring:
		return ErrNotMonitoring
	case m.dailyCapReached():
		return ErrDailyLimitReached
	case !m.state.Started():
		return ErrNoSession
	case m.state.ExtensionUsed:
		return ErrExtensionUsed
	}

	m.state.LimitValue += m.extensionIncrement()
	m.state.ExtensionUsed = true
	m.state.SessionCompleted = false
	m.state.IsActive = true
	m.state.LastActivityTime = now
	m.state.BreakUntil = time.Time{}
	m.lastTimerUpdate = now
	m.missedTicks = 0
	m.pendingSeconds = 0

	metrics.ExtensionsGranted.Inc()
	m.logger.Info().
		Str("app", m.state.ActiveAppPackage).
		Str("limit", m.limitDescription()).
		Msg("Session extended")

	out.Persist = true
	out.emit(m.overlay())
	return nil
}

// nextSession dismisses the interrupt. The daily counter only advances when
// the reset gap has elapsed.
func (m *Machine) nextSession(out *Outcome) error {
	if !m.state.SessionCompleted {
		return ErrNotCompleted
	}
	out.emit(HideOverlay{})
	return nil
}

func (m *Machine) takeBreak(now time.Time, d time.Duration, out *Outcome) {
	if d <= 0 {
		d = m.rules.BreakDuration
	}
	m.state.BreakUntil = now.Add(d)
	if m.state.IsActive {
		m.state.IsActive = false
		m.state.LastActivityTime = now
	}
	m.missedTicks = 0
	m.pendingSeconds = 0
	m.unpersisted = 0

	m.logger.Info().
		Time("until", m.state.BreakUntil).
		Msg("Taking a break")

	out.Persist = true
	out.emit(HideOverlay{})
}
