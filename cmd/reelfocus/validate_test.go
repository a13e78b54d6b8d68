package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetValidKeys(t *testing.T) {
	keys := getValidKeys()

	for _, key := range []string{
		"server.api_port",
		"engine.tick_interval",
		"detector.permission_args",
		"classifier.fallback_confidence",
		"storage.redis.write_timeout",
		"history.daily_reset_time",
		"api.burst",
	} {
		assert.True(t, keys[key], key)
	}

	// Sections are not keys themselves
	assert.False(t, keys["storage.redis"])
	assert.False(t, keys["engine"])
}

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  tick_interval: 2s
  grace_tiks: 4
logging:
  level: debug
dns:
  port: 53
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	unknown, err := findUnknownKeys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"dns.port", "engine.grace_tiks"}, unknown)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "info", parseLevel("verbose").String())
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0s", formatSeconds(0))
	assert.Equal(t, "1m30s", formatSeconds(90))
	assert.Equal(t, "1h0m5s", formatSeconds(3605))
}
