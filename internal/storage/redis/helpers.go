package redis

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goodtune/reelfocus/internal/storage"
)

// formatTime renders a timestamp for a hash field; the zero time is stored empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(data map[string]string, field string) (time.Time, error) {
	value := data[field]
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return t, nil
}

func parseInt(data map[string]string, field string) (int, error) {
	value, err := strconv.Atoi(data[field])
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return value, nil
}

func parseBool(data map[string]string, field string) (bool, error) {
	value, err := strconv.ParseBool(data[field])
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return value, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// configFields flattens an AppConfig into hash fields.
func configFields(cfg storage.AppConfig) (map[string]any, error) {
	apps := cfg.MonitoredApps
	if apps == nil {
		apps = []storage.MonitoredApp{}
	}
	appsJSON, err := json.Marshal(apps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode monitored_apps: %w", err)
	}
	return map[string]any{
		"max_sessions_daily":        cfg.MaxSessionsDaily,
		"session_reset_gap_minutes": cfg.SessionResetGapMinutes,
		"default_limit_type":        string(cfg.DefaultLimitType),
		"default_limit_value":       cfg.DefaultLimitValue,
		"monitored_apps":            string(appsJSON),
	}, nil
}

// parseAppConfig converts a Redis hash to AppConfig
func parseAppConfig(data map[string]string) (*storage.AppConfig, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	maxSessions, err := parseInt(data, "max_sessions_daily")
	if err != nil {
		return nil, err
	}

	gap, err := parseInt(data, "session_reset_gap_minutes")
	if err != nil {
		return nil, err
	}

	limitType, err := storage.ParseLimitType(data["default_limit_type"])
	if err != nil {
		return nil, err
	}

	limitValue, err := parseInt(data, "default_limit_value")
	if err != nil {
		return nil, err
	}

	apps := []storage.MonitoredApp{}
	if raw := data["monitored_apps"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &apps); err != nil {
			return nil, fmt.Errorf("failed to parse monitored_apps: %w", err)
		}
	}

	return &storage.AppConfig{
		MaxSessionsDaily:       maxSessions,
		SessionResetGapMinutes: gap,
		DefaultLimitType:       limitType,
		DefaultLimitValue:      limitValue,
		MonitoredApps:          apps,
	}, nil
}

// stateFields flattens a SessionState into hash fields.
func stateFields(state storage.SessionState) map[string]any {
	return map[string]any{
		"seconds_elapsed":    state.SecondsElapsed,
		"limit_value":        state.LimitValue,
		"limit_type":         string(state.LimitType),
		"current_session":    state.CurrentSession,
		"max_sessions":       state.MaxSessions,
		"is_active":          formatBool(state.IsActive),
		"session_start_time": formatTime(state.SessionStartTime),
		"last_activity_time": formatTime(state.LastActivityTime),
		"extension_used":     formatBool(state.ExtensionUsed),
		"session_completed":  formatBool(state.SessionCompleted),
		"active_app_package": state.ActiveAppPackage,
		"last_reset_date":    state.LastResetDate,
		"break_until":        formatTime(state.BreakUntil),
		"recorded_seconds":   state.RecordedSeconds,
	}
}

// parseSessionState converts a Redis hash to SessionState
func parseSessionState(data map[string]string) (*storage.SessionState, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	var (
		state storage.SessionState
		err   error
	)

	if state.SecondsElapsed, err = parseInt(data, "seconds_elapsed"); err != nil {
		return nil, err
	}
	if state.LimitValue, err = parseInt(data, "limit_value"); err != nil {
		return nil, err
	}
	if state.LimitType, err = storage.ParseLimitType(data["limit_type"]); err != nil {
		return nil, err
	}
	if state.CurrentSession, err = parseInt(data, "current_session"); err != nil {
		return nil, err
	}
	if state.MaxSessions, err = parseInt(data, "max_sessions"); err != nil {
		return nil, err
	}
	if state.IsActive, err = parseBool(data, "is_active"); err != nil {
		return nil, err
	}
	if state.SessionStartTime, err = parseTime(data, "session_start_time"); err != nil {
		return nil, err
	}
	if state.LastActivityTime, err = parseTime(data, "last_activity_time"); err != nil {
		return nil, err
	}
	if state.ExtensionUsed, err = parseBool(data, "extension_used"); err != nil {
		return nil, err
	}
	if state.SessionCompleted, err = parseBool(data, "session_completed"); err != nil {
		return nil, err
	}
	if state.BreakUntil, err = parseTime(data, "break_until"); err != nil {
		return nil, err
	}
	if data["recorded_seconds"] != "" {
		if state.RecordedSeconds, err = parseInt(data, "recorded_seconds"); err != nil {
			return nil, err
		}
	}
	state.ActiveAppPackage = data["active_app_package"]
	state.LastResetDate = data["last_reset_date"]

	return &state, nil
}

// parseHistoryEntry converts a Redis hash to HistoryEntry
func parseHistoryEntry(data map[string]string) (*storage.HistoryEntry, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	entry := storage.HistoryEntry{
		ID:         data["id"],
		AppName:    data["app_name"],
		AppPackage: data["app_package"],
		LimitType:  storage.LimitType(data["limit_type"]),
		Date:       data["date"],
	}

	var err error
	if entry.StartTime, err = parseTime(data, "start_time"); err != nil {
		return nil, err
	}
	if entry.EndTime, err = parseTime(data, "end_time"); err != nil {
		return nil, err
	}
	if entry.DurationSeconds, err = parseInt(data, "duration_seconds"); err != nil {
		return nil, err
	}
	if entry.LimitValue, err = parseInt(data, "limit_value"); err != nil {
		return nil, err
	}
	if entry.ExtensionsUsed, err = parseInt(data, "extensions_used"); err != nil {
		return nil, err
	}
	if entry.Completed, err = parseBool(data, "completed"); err != nil {
		return nil, err
	}

	return &entry, nil
}
