package session

import (
	"testing"
	"time"

	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	appA = "com.example.a"
	appB = "com.example.b"
	appC = "com.example.c"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)

func intPtr(v int) *int { return &v }

// scenarioConfig caps the day at three sessions with a 20 minute default
// quota and a 30 minute quota for app B.
func scenarioConfig() storage.AppConfig {
	return storage.AppConfig{
		MaxSessionsDaily:       3,
		SessionResetGapMinutes: 10,
		DefaultLimitType:       storage.LimitTime,
		DefaultLimitValue:      20,
		MonitoredApps: []storage.MonitoredApp{
			{PackageID: appA, DisplayName: "App A", Enabled: true},
			{PackageID: appB, DisplayName: "App B", Enabled: true, CustomLimitValue: intPtr(30)},
			{PackageID: appC, DisplayName: "App C", Enabled: true, CustomLimitValue: intPtr(1)},
		},
	}
}

func testRules() Rules {
	return Rules{
		TickInterval:      time.Second,
		GraceTicks:        3,
		PersistEvery:      5,
		ExtensionMinutes:  5,
		BreakDuration:     5 * time.Minute,
		MinHistorySeconds: 10,
		SecondsPerItem:    15,
	}
}

// harness drives a Machine with a simulated one-second clock.
type harness struct {
	t       *testing.T
	m       *Machine
	now     time.Time
	effects []Effect
}

func newHarness(t *testing.T, cfg storage.AppConfig) *harness {
	t.Helper()
	m := NewMachine(storage.NewSessionState(cfg, t0), cfg, testRules(), zerolog.Nop())
	h := &harness{t: t, m: m, now: t0}
	h.apply(Command{Name: CommandStart})
	return h
}

// tick advances the clock by one second and applies a tick. An empty pkg
// means nothing is detected.
func (h *harness) tick(pkg string) Outcome {
	h.now = h.now.Add(time.Second)
	var r *detect.Result
	if pkg != "" {
		r = &detect.Result{PackageID: pkg, Engaged: true, Confidence: 0.5, Method: detect.MethodFallback, Timestamp: h.now}
	}
	out := h.m.Tick(h.now, r)
	h.effects = append(h.effects, out.Effects...)
	return out
}

func (h *harness) ticks(pkg string, n int) {
	for i := 0; i < n; i++ {
		h.tick(pkg)
	}
}

// idle advances the clock without ticking, as if the device slept.
func (h *harness) idle(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) apply(cmd Command) (Outcome, error) {
	out, err := h.m.Apply(h.now, cmd)
	h.effects = append(h.effects, out.Effects...)
	return out, err
}

func (h *harness) mustApply(cmd Command) Outcome {
	h.t.Helper()
	out, err := h.apply(cmd)
	require.NoError(h.t, err)
	return out
}

func (h *harness) state() storage.SessionState {
	return h.m.State()
}

func (h *harness) reset() {
	h.effects = nil
}

func (h *harness) histories() []storage.HistoryEntry {
	var entries []storage.HistoryEntry
	for _, e := range h.effects {
		if rec, ok := e.(RecordHistory); ok {
			entries = append(entries, rec.Entry)
		}
	}
	return entries
}

func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
