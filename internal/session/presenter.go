package session

import (
	"github.com/rs/zerolog"
)

// Presenter consumes side-effect requests. Implementations must not block.
type Presenter interface {
	Present(Effect)
}

// MultiPresenter fans effects out to several presenters.
type MultiPresenter []Presenter

// Present forwards e to every presenter.
func (mp MultiPresenter) Present(e Effect) {
	for _, p := range mp {
		p.Present(e)
	}
}

// LogPresenter logs user-facing effects. Overlay updates are logged at
// debug level since one arrives every tick.
type LogPresenter struct {
	logger zerolog.Logger
}

// NewLogPresenter creates a presenter that writes effects to the log.
func NewLogPresenter(logger zerolog.Logger) *LogPresenter {
	return &LogPresenter{logger: logger.With().Str("component", "presenter").Logger()}
}

// Present logs e.
func (p *LogPresenter) Present(e Effect) {
	switch e := e.(type) {
	case ShowOverlay:
		p.logger.Debug().
			Int("remaining", e.Remaining).
			Str("unit", string(e.LimitType)).
			Str("session", e.SessionLabel).
			Bool("warning", e.Warning).
			Msg("Overlay")
	case HideOverlay:
		p.logger.Debug().Msg("Overlay hidden")
	case ShowInterrupt:
		p.logger.Info().
			Str("app", e.AppName).
			Str("limit", e.LimitDescription).
			Str("session", e.SessionLabel).
			Bool("daily_limit_reached", e.DailyLimitReached).
			Msg("Session limit reached")
	case ShowDailyBlock:
		p.logger.Warn().
			Str("app", e.AppName).
			Str("session", e.SessionLabel).
			Msg("Daily session limit reached")
	}
}
