package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDayOfThreeSessions walks a full day: two 20 minute quotas on app A,
// one that switches to app B midway and finishes on B's 30 minute quota,
// and the daily block afterwards.
func TestDayOfThreeSessions(t *testing.T) {
	h := newHarness(t, scenarioConfig())

	// Session 1
	h.tick(appA)
	sessionStart := h.now
	h.ticks(appA, 1199)
	require.False(t, h.state().SessionCompleted)
	h.tick(appA)
	require.True(t, h.state().SessionCompleted)
	assert.Equal(t, 1200, h.state().SecondsElapsed)

	interrupts := effectsOf[ShowInterrupt](h.effects)
	require.Len(t, interrupts, 1)
	assert.Equal(t, "Session 1 of 3", interrupts[0].SessionLabel)
	assert.Equal(t, "20 minutes", interrupts[0].LimitDescription)
	assert.False(t, interrupts[0].DailyLimitReached)

	entries := h.histories()
	require.Len(t, entries, 1)
	assert.Equal(t, sessionStart, entries[0].StartTime)
	assert.Equal(t, 1200, entries[0].DurationSeconds)

	// Session 2 opens after the reset gap and finishes on app B
	h.reset()
	h.idle(40 * time.Minute)
	h.tick(appA)
	sessionStart = h.now
	s := h.state()
	require.Equal(t, 2, s.CurrentSession)
	require.Equal(t, 0, s.SecondsElapsed)

	h.ticks(appA, 600)
	h.tick(appB)
	s = h.state()
	assert.Equal(t, 601, s.SecondsElapsed)
	assert.Equal(t, 30, s.LimitValue)

	h.ticks(appB, 1198)
	require.False(t, h.state().SessionCompleted)
	h.tick(appB)
	require.True(t, h.state().SessionCompleted)
	assert.Equal(t, 1800, h.state().SecondsElapsed)

	interrupts = effectsOf[ShowInterrupt](h.effects)
	require.Len(t, interrupts, 1)
	assert.Equal(t, "App B", interrupts[0].AppName)
	assert.Equal(t, "Session 2 of 3", interrupts[0].SessionLabel)
	assert.False(t, interrupts[0].DailyLimitReached)

	entries = h.histories()
	require.Len(t, entries, 1)
	assert.Equal(t, appB, entries[0].AppPackage)
	assert.Equal(t, 30, entries[0].LimitValue)
	assert.Equal(t, 1800, entries[0].DurationSeconds)
	assert.Equal(t, sessionStart, entries[0].StartTime)

	// Session 3 is the last of the day
	h.reset()
	h.idle(15 * time.Minute)
	h.tick(appA)
	require.Equal(t, 3, h.state().CurrentSession)
	assert.Equal(t, 20, h.state().LimitValue)
	h.ticks(appA, 1200)
	require.True(t, h.state().SessionCompleted)

	interrupts = effectsOf[ShowInterrupt](h.effects)
	require.Len(t, interrupts, 1)
	assert.Equal(t, "Session 3 of 3", interrupts[0].SessionLabel)
	assert.True(t, interrupts[0].DailyLimitReached)
	assert.Equal(t, PhaseBlocked, h.m.Phase(h.now))

	// Any further engagement today is blocked
	h.reset()
	out := h.tick(appA)
	blocks := effectsOf[ShowDailyBlock](out.Effects)
	require.Len(t, blocks, 1)
	assert.Equal(t, "App A", blocks[0].AppName)
	assert.Equal(t, "Session 3 of 3", blocks[0].SessionLabel)

	h.idle(time.Hour)
	out = h.tick(appB)
	assert.Len(t, effectsOf[ShowDailyBlock](out.Effects), 1)
	assert.Equal(t, 3, h.state().CurrentSession)
	assert.Equal(t, 1200, h.state().SecondsElapsed)
	assert.Empty(t, h.histories())
}
