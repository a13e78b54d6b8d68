package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Settings() SettingsStore
	History() HistoryStore
}

// SettingsStore holds the quota configuration and the session record.
// Each record is written atomically as a whole.
type SettingsStore interface {
	GetConfig(ctx context.Context) (*AppConfig, error)
	PutConfig(ctx context.Context, cfg AppConfig) error
	GetSessionState(ctx context.Context) (*SessionState, error)
	PutSessionState(ctx context.Context, state SessionState) error
	Initialized(ctx context.Context) (bool, error)
	MarkInitialized(ctx context.Context) error
}

// HistoryStore is the append-only session log.
type HistoryStore interface {
	Append(ctx context.Context, entry HistoryEntry) error
	List(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Clear(ctx context.Context) error
}

// HistoryFilter defines criteria for listing history entries.
// Entries are returned most recent first.
type HistoryFilter struct {
	Date       string
	AppPackage string
	Since      *time.Time
	Limit      int
}

// Match reports whether the entry satisfies the filter, ignoring Limit.
func (f HistoryFilter) Match(entry HistoryEntry) bool {
	if f.Date != "" && entry.Date != f.Date {
		return false
	}
	if f.AppPackage != "" && entry.AppPackage != f.AppPackage {
		return false
	}
	if f.Since != nil && entry.EndTime.Before(*f.Since) {
		return false
	}
	return true
}
