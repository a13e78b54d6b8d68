package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/rs/zerolog"
)

// StateSaver writes the session record.
type StateSaver interface {
	SaveSessionState(ctx context.Context, state storage.SessionState) error
}

// HistoryWriter appends finished sessions to history.
type HistoryWriter interface {
	RecordSession(ctx context.Context, entry storage.HistoryEntry) error
}

// Persister writes state and history off the tick path. Only the newest
// pending state is kept; history entries are queued in order. Failed writes
// stay pending and are retried on the next wake-up.
type Persister struct {
	saver   StateSaver
	history HistoryWriter
	timeout time.Duration
	logger  zerolog.Logger

	mu           sync.Mutex
	pendingState *storage.SessionState
	pendingLog   []storage.HistoryEntry

	// writeMu orders flushes so an older state never lands after a newer one
	writeMu sync.Mutex

	wake chan struct{}
}

// NewPersister creates a new persister.
func NewPersister(saver StateSaver, history HistoryWriter, logger zerolog.Logger) *Persister {
	return &Persister{
		saver:   saver,
		history: history,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "persister").Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// SaveState queues state, replacing any older pending state.
func (p *Persister) SaveState(state storage.SessionState) {
	p.mu.Lock()
	p.pendingState = &state
	p.mu.Unlock()
	p.notify()
}

// Record queues a history entry.
func (p *Persister) Record(entry storage.HistoryEntry) {
	p.mu.Lock()
	p.pendingLog = append(p.pendingLog, entry)
	p.mu.Unlock()
	p.notify()
}

// Retry wakes the writer if anything is still pending.
func (p *Persister) Retry() {
	if p.Pending() {
		p.notify()
	}
}

// Pending reports whether writes are outstanding.
func (p *Persister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingState != nil || len(p.pendingLog) > 0
}

func (p *Persister) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes pending records whenever woken, until ctx is cancelled. The
// final flush uses a fresh context so it survives the cancellation.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
			err := p.Flush(flushCtx)
			cancel()
			if err != nil {
				p.logger.Error().Err(err).Msg("Final flush failed")
			}
			return nil
		case <-p.wake:
			writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			if err := p.Flush(writeCtx); err != nil {
				p.logger.Warn().Err(err).Msg("Write failed, will retry on next tick")
			}
			cancel()
		}
	}
}

// Flush writes everything pending now.
func (p *Persister) Flush(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	state := p.pendingState
	entries := p.pendingLog
	p.pendingState = nil
	p.pendingLog = nil
	p.mu.Unlock()

	var errs []error

	for i, entry := range entries {
		if err := p.history.RecordSession(ctx, entry); err != nil {
			errs = append(errs, err)
			p.requeue(nil, entries[i:])
			break
		}
	}

	if state != nil {
		if err := p.saver.SaveSessionState(ctx, *state); err != nil {
			errs = append(errs, err)
			p.requeue(state, nil)
		}
	}

	return errors.Join(errs...)
}

// requeue puts failed writes back unless newer ones arrived meanwhile.
func (p *Persister) requeue(state *storage.SessionState, entries []storage.HistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state != nil && p.pendingState == nil {
		p.pendingState = state
	}
	if len(entries) > 0 {
		p.pendingLog = append(append([]storage.HistoryEntry(nil), entries...), p.pendingLog...)
	}
}
