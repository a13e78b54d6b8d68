// Package detect answers which monitored application, if any, the user is
// engaged with right now.
package detect

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned when the usage facility refuses access.
var ErrPermissionDenied = errors.New("detect: usage access permission denied")

// Method identifies which detection tier produced a result.
type Method string

const (
	MethodPattern  Method = "pattern"
	MethodFallback Method = "fallback"
	MethodNone     Method = "none"
)

// Result is one classification, produced fresh every tick.
type Result struct {
	PackageID  string    `json:"package_id"`
	Engaged    bool      `json:"engaged"`
	Confidence float64   `json:"confidence"`
	Method     Method    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
}

// UsageEvent reports the last time a package was in the foreground.
type UsageEvent struct {
	PackageID string    `json:"package_id"`
	LastUsed  time.Time `json:"last_used"`
}

// UsageSource is the OS usage-tracking facility behind the foreground detector.
type UsageSource interface {
	// RecentUsage returns the packages used at or after since.
	RecentUsage(ctx context.Context, since time.Time) ([]UsageEvent, error)
	HasPermission(ctx context.Context) (bool, error)
}

func contains(candidates []string, pkg string) bool {
	for _, c := range candidates {
		if c == pkg {
			return true
		}
	}
	return false
}
