package storage

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// DateLayout is the calendar date format used for history entries and daily resets.
const DateLayout = "2006-01-02"

// DateKey returns the local calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// LimitType represents how a session quota is measured.
type LimitType string

const (
	LimitTime  LimitType = "TIME"
	LimitCount LimitType = "COUNT"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the limit type to uppercase.
func (l *LimitType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLimitType(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLimitType parses a limit type case-insensitively.
func ParseLimitType(s string) (LimitType, error) {
	normalized := LimitType(strings.ToUpper(strings.TrimSpace(s)))
	switch normalized {
	case LimitTime, LimitCount:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid limit type: %s (must be TIME or COUNT)", s)
	}
}

// Unit returns the human readable unit of the limit type.
func (l LimitType) Unit() string {
	if l == LimitCount {
		return "items"
	}
	return "minutes"
}

// MonitoredApp is an application whose foreground use is limited.
type MonitoredApp struct {
	PackageID        string `json:"package_id"`
	DisplayName      string `json:"display_name"`
	Enabled          bool   `json:"enabled"`
	CustomLimitValue *int   `json:"custom_limit_value,omitempty"`
}

// AppConfig is the user-editable quota configuration.
type AppConfig struct {
	MaxSessionsDaily       int            `json:"max_sessions_daily"`
	SessionResetGapMinutes int            `json:"session_reset_gap_minutes"`
	DefaultLimitType       LimitType      `json:"default_limit_type"`
	DefaultLimitValue      int            `json:"default_limit_value"`
	MonitoredApps          []MonitoredApp `json:"monitored_apps"`
}

// Validate checks the configuration invariants.
func (c AppConfig) Validate() error {
	if c.MaxSessionsDaily < 1 {
		return fmt.Errorf("max_sessions_daily must be at least 1, got %d", c.MaxSessionsDaily)
	}
	if c.SessionResetGapMinutes < 1 {
		return fmt.Errorf("session_reset_gap_minutes must be at least 1, got %d", c.SessionResetGapMinutes)
	}
	if _, err := ParseLimitType(string(c.DefaultLimitType)); err != nil {
		return err
	}
	if c.DefaultLimitValue <= 0 {
		return fmt.Errorf("default_limit_value must be positive, got %d", c.DefaultLimitValue)
	}
	seen := make(map[string]bool, len(c.MonitoredApps))
	for _, app := range c.MonitoredApps {
		if app.PackageID == "" {
			return fmt.Errorf("monitored app is missing package_id")
		}
		if seen[app.PackageID] {
			return fmt.Errorf("duplicate monitored app: %s", app.PackageID)
		}
		seen[app.PackageID] = true
		if app.CustomLimitValue != nil && *app.CustomLimitValue <= 0 {
			return fmt.Errorf("custom_limit_value for %s must be positive", app.PackageID)
		}
	}
	return nil
}

// App returns the monitored app with the given package ID.
func (c AppConfig) App(packageID string) (MonitoredApp, bool) {
	for _, app := range c.MonitoredApps {
		if app.PackageID == packageID {
			return app, true
		}
	}
	return MonitoredApp{}, false
}

// EnabledPackages returns the package IDs of all enabled apps, in configuration order.
func (c AppConfig) EnabledPackages() []string {
	packages := make([]string, 0, len(c.MonitoredApps))
	for _, app := range c.MonitoredApps {
		if app.Enabled {
			packages = append(packages, app.PackageID)
		}
	}
	return packages
}

// LimitFor returns the effective quota value for an app. A custom value
// overrides only the default value, never the limit type.
func (c AppConfig) LimitFor(packageID string) int {
	if app, ok := c.App(packageID); ok && app.CustomLimitValue != nil {
		return *app.CustomLimitValue
	}
	return c.DefaultLimitValue
}

// AppName returns the display name of a package, falling back to the last
// segment of the package ID.
func (c AppConfig) AppName(packageID string) string {
	if app, ok := c.App(packageID); ok && app.DisplayName != "" {
		return app.DisplayName
	}
	if idx := strings.LastIndex(packageID, "."); idx >= 0 && idx < len(packageID)-1 {
		return packageID[idx+1:]
	}
	return packageID
}

// SessionState is the durable record of the current session.
type SessionState struct {
	SecondsElapsed   int       `json:"seconds_elapsed"`
	LimitValue       int       `json:"limit_value"`
	LimitType        LimitType `json:"limit_type"`
	CurrentSession   int       `json:"current_session"`
	MaxSessions      int       `json:"max_sessions"`
	IsActive         bool      `json:"is_active"`
	SessionStartTime time.Time `json:"session_start_time"`
	LastActivityTime time.Time `json:"last_activity_time"`
	ExtensionUsed    bool      `json:"extension_used"`
	SessionCompleted bool      `json:"session_completed"`
	ActiveAppPackage string    `json:"active_app_package,omitempty"`
	LastResetDate    string    `json:"last_reset_date"`
	BreakUntil       time.Time `json:"break_until"`
	RecordedSeconds  int       `json:"recorded_seconds"`
}

// NewSessionState returns a fresh state for the given configuration.
func NewSessionState(cfg AppConfig, now time.Time) SessionState {
	return SessionState{
		LimitValue:     cfg.DefaultLimitValue,
		LimitType:      cfg.DefaultLimitType,
		CurrentSession: 1,
		MaxSessions:    cfg.MaxSessionsDaily,
		LastResetDate:  DateKey(now),
	}
}

// Started reports whether a session has ever been started.
func (s SessionState) Started() bool {
	return !s.SessionStartTime.IsZero()
}

// ResetIfNewDay performs the daily reset when the local calendar date of now
// is after the last reset date. A completed session is discarded so that the
// next engagement opens a fresh one.
func (s *SessionState) ResetIfNewDay(now time.Time) bool {
	today := DateKey(now)
	if s.LastResetDate != "" && today <= s.LastResetDate {
		return false
	}

	wasCompleted := s.SessionCompleted
	s.CurrentSession = 1
	s.ExtensionUsed = false
	s.SessionCompleted = false
	s.LastResetDate = today
	if wasCompleted {
		s.SecondsElapsed = 0
		s.RecordedSeconds = 0
		s.SessionStartTime = time.Time{}
		s.ActiveAppPackage = ""
	}
	return true
}

// HistoryEntry is one finished session.
type HistoryEntry struct {
	ID              string    `json:"id"`
	AppName         string    `json:"app_name"`
	AppPackage      string    `json:"app_package"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int       `json:"duration_seconds"`
	LimitType       LimitType `json:"limit_type"`
	LimitValue      int       `json:"limit_value"`
	ExtensionsUsed  int       `json:"extensions_used"`
	Completed       bool      `json:"completed"`
	Date            string    `json:"date"`
}

// AppDayStats aggregates the sessions of one app.
type AppDayStats struct {
	AppName          string `json:"app_name"`
	Sessions         int    `json:"sessions"`
	TotalTimeSeconds int    `json:"total_time_seconds"`
	Extensions       int    `json:"extensions"`
}

// DailyStats aggregates the sessions of one calendar day.
type DailyStats struct {
	Date              string                 `json:"date"`
	TotalSessions     int                    `json:"total_sessions"`
	CompletedSessions int                    `json:"completed_sessions"`
	TotalTimeSeconds  int                    `json:"total_time_seconds"`
	TotalExtensions   int                    `json:"total_extensions"`
	AppBreakdown      map[string]AppDayStats `json:"app_breakdown"`
}
