package detect

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsage(t *testing.T) {
	since := time.UnixMilli(1_700_000_000_000)
	out := []byte(`# package last-used
com.instagram.android 1700000005000

com.zhiliaoapp.musically 1699999990000
`)

	events, err := parseUsage(out, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "com.instagram.android", events[0].PackageID)
	assert.Equal(t, time.UnixMilli(1_700_000_005_000), events[0].LastUsed)

	_, err = parseUsage([]byte("com.instagram.android\n"), since)
	assert.Error(t, err)
	_, err = parseUsage([]byte("com.instagram.android yesterday\n"), since)
	assert.Error(t, err)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandSource(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	src := &CommandSource{
		Command: "sh",
		Args:    []string{"-c", `echo "com.instagram.android $REELFOCUS_SINCE"`},
	}
	since := time.UnixMilli(1_700_000_000_000)
	events, err := src.RecentUsage(ctx, since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, since, events[0].LastUsed)

	denied := &CommandSource{Command: "sh", Args: []string{"-c", "exit 77"}}
	_, err = denied.RecentUsage(ctx, since)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	broken := &CommandSource{Command: "sh", Args: []string{"-c", "echo oops >&2; exit 1"}}
	_, err = broken.RecentUsage(ctx, since)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestCommandSource_HasPermission(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	ok, err := (&CommandSource{}).HasPermission(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&CommandSource{PermissionCommand: "sh", PermissionArgs: []string{"-c", "exit 0"}}).HasPermission(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&CommandSource{PermissionCommand: "sh", PermissionArgs: []string{"-c", "exit 1"}}).HasPermission(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPushSource(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewTest(now)
	src := NewPushSource(clk)
	ctx := context.Background()

	src.Report(UsageEvent{PackageID: "com.instagram.android"})
	src.Report(UsageEvent{PackageID: "com.instagram.android", LastUsed: now.Add(-time.Minute)})
	src.Report(UsageEvent{PackageID: "com.zhiliaoapp.musically", LastUsed: now.Add(-time.Hour)})

	events, err := src.RecentUsage(ctx, now.Add(-10*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].LastUsed, "older report must not replace a newer one")

	src.SetPermission(false)
	ok, err := src.HasPermission(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = src.RecentUsage(ctx, now)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
