package settings

import "github.com/goodtune/reelfocus/internal/storage"

// DefaultConfig is seeded into an empty store on first run. The one-minute
// quota keeps the whole cycle easy to observe.
func DefaultConfig() storage.AppConfig {
	return storage.AppConfig{
		MaxSessionsDaily:       5,
		SessionResetGapMinutes: 10,
		DefaultLimitType:       storage.LimitTime,
		DefaultLimitValue:      1,
		MonitoredApps: []storage.MonitoredApp{
			{PackageID: "com.zhiliaoapp.musically", DisplayName: "TikTok", Enabled: true},
			{PackageID: "com.instagram.android", DisplayName: "Instagram", Enabled: true},
			{PackageID: "com.google.android.youtube", DisplayName: "YouTube Shorts", Enabled: true},
		},
	}
}
