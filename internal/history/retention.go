package history

import (
	"context"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/rs/zerolog"
)

// RetentionScheduler prunes old history once a day
type RetentionScheduler struct {
	recorder  *Recorder
	clock     clock.Clock
	resetTime time.Time // Time of day to prune (only hour and minute are used)
	logger    zerolog.Logger
	stopChan  chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(recorder *Recorder, clk clock.Clock, resetTime string, logger zerolog.Logger) (*RetentionScheduler, error) {
	// Parse reset time (HH:MM format)
	parsedTime, err := time.Parse("15:04", resetTime)
	if err != nil {
		return nil, err
	}

	return &RetentionScheduler{
		recorder:  recorder,
		clock:     clk,
		resetTime: parsedTime,
		logger:    logger.With().Str("component", "retention-scheduler").Logger(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("reset_time", rs.resetTime.Format("15:04")).
		Int("retention_days", rs.recorder.retentionDays).
		Msg("History retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("History retention scheduler stopped")
}

func (rs *RetentionScheduler) run() {
	for {
		nextRun := rs.NextRun(rs.clock.Now())
		waitDuration := nextRun.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next history prune")

		select {
		case <-time.After(waitDuration):
			rs.performPrune()
		case <-rs.stopChan:
			return
		}
	}
}

// NextRun returns the first scheduled time strictly after now.
func (rs *RetentionScheduler) NextRun(now time.Time) time.Time {
	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.resetTime.Hour(), rs.resetTime.Minute(), 0, 0,
		now.Location(),
	)

	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

func (rs *RetentionScheduler) performPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := rs.recorder.Prune(ctx)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune history")
		return
	}
	rs.logger.Info().
		Int("entries_deleted", deleted).
		Msg("Daily history prune complete")
}
