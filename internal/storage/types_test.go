package storage

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func intPtr(v int) *int { return &v }

func testConfig() AppConfig {
	return AppConfig{
		MaxSessionsDaily:       3,
		SessionResetGapMinutes: 10,
		DefaultLimitType:       LimitTime,
		DefaultLimitValue:      20,
		MonitoredApps: []MonitoredApp{
			{PackageID: "com.a", DisplayName: "App A", Enabled: true},
			{PackageID: "com.b", DisplayName: "App B", Enabled: true, CustomLimitValue: intPtr(30)},
			{PackageID: "com.example.c", Enabled: false},
		},
	}
}

func TestAppConfig_LimitForAndName(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		pkg       string
		wantLimit int
		wantName  string
	}{
		{pkg: "com.a", wantLimit: 20, wantName: "App A"},
		{pkg: "com.b", wantLimit: 30, wantName: "App B"},
		{pkg: "com.example.c", wantLimit: 20, wantName: "c"},
		{pkg: "unknown", wantLimit: 20, wantName: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			if got := cfg.LimitFor(tt.pkg); got != tt.wantLimit {
				t.Errorf("LimitFor(%s) = %d, want %d", tt.pkg, got, tt.wantLimit)
			}
			if got := cfg.AppName(tt.pkg); got != tt.wantName {
				t.Errorf("AppName(%s) = %s, want %s", tt.pkg, got, tt.wantName)
			}
		})
	}

	enabled := cfg.EnabledPackages()
	if len(enabled) != 2 || enabled[0] != "com.a" || enabled[1] != "com.b" {
		t.Errorf("Unexpected enabled packages: %v", enabled)
	}
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "zero sessions", mutate: func(c *AppConfig) { c.MaxSessionsDaily = 0 }, wantErr: true},
		{name: "zero gap", mutate: func(c *AppConfig) { c.SessionResetGapMinutes = 0 }, wantErr: true},
		{name: "bad limit type", mutate: func(c *AppConfig) { c.DefaultLimitType = "PAGES" }, wantErr: true},
		{name: "zero limit", mutate: func(c *AppConfig) { c.DefaultLimitValue = 0 }, wantErr: true},
		{name: "duplicate app", mutate: func(c *AppConfig) { c.MonitoredApps = append(c.MonitoredApps, MonitoredApp{PackageID: "com.a"}) }, wantErr: true},
		{name: "missing package", mutate: func(c *AppConfig) { c.MonitoredApps[0].PackageID = "" }, wantErr: true},
		{name: "negative custom limit", mutate: func(c *AppConfig) { c.MonitoredApps[0].CustomLimitValue = intPtr(-1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLimitType_UnmarshalJSON(t *testing.T) {
	var cfg AppConfig
	if err := json.Unmarshal([]byte(`{"default_limit_type":"count"}`), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.DefaultLimitType != LimitCount {
		t.Errorf("Expected COUNT, got %s", cfg.DefaultLimitType)
	}

	if err := json.Unmarshal([]byte(`{"default_limit_type":"pages"}`), &cfg); err == nil {
		t.Error("Expected error for unknown limit type")
	}
}

func TestSessionState_ResetIfNewDay(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	day2 := day1.Add(2 * time.Minute)

	t.Run("same day is a no-op", func(t *testing.T) {
		s := NewSessionState(testConfig(), day1)
		s.CurrentSession = 2
		if s.ResetIfNewDay(day1.Add(30 * time.Second)) {
			t.Fatal("Expected no reset on the same day")
		}
		if s.CurrentSession != 2 {
			t.Errorf("Expected session counter untouched, got %d", s.CurrentSession)
		}
	})

	t.Run("new day clears counters and flags", func(t *testing.T) {
		s := NewSessionState(testConfig(), day1)
		s.CurrentSession = 4
		s.ExtensionUsed = true
		s.SessionCompleted = true
		s.SecondsElapsed = 1200
		s.RecordedSeconds = 1200
		s.SessionStartTime = day1.Add(-20 * time.Minute)
		s.ActiveAppPackage = "com.a"

		if !s.ResetIfNewDay(day2) {
			t.Fatal("Expected reset on a new day")
		}
		if s.CurrentSession != 1 || s.ExtensionUsed || s.SessionCompleted {
			t.Errorf("Expected counters cleared, got %+v", s)
		}
		if s.Started() || s.SecondsElapsed != 0 || s.ActiveAppPackage != "" {
			t.Errorf("Expected completed session discarded, got %+v", s)
		}
		if s.LastResetDate != DateKey(day2) {
			t.Errorf("Expected last reset %s, got %s", DateKey(day2), s.LastResetDate)
		}
	})

	t.Run("paused session survives the reset", func(t *testing.T) {
		s := NewSessionState(testConfig(), day1)
		s.SecondsElapsed = 300
		s.SessionStartTime = day1.Add(-5 * time.Minute)
		s.ActiveAppPackage = "com.a"

		s.ResetIfNewDay(day2)
		if s.SecondsElapsed != 300 || !s.Started() {
			t.Errorf("Expected unfinished session kept, got %+v", s)
		}
	})

	t.Run("empty reset date always resets", func(t *testing.T) {
		s := SessionState{CurrentSession: 3}
		if !s.ResetIfNewDay(day1) || s.CurrentSession != 1 {
			t.Errorf("Expected reset from empty date, got %+v", s)
		}
	})
}
