package detect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/reelfocus/internal/clock"
)

// PermissionDeniedExitCode is the exit status a usage command uses to report
// that it lacks access to usage data.
const PermissionDeniedExitCode = 77

// CommandSource runs an external program that prints one
// "<package> <unix-millis>" line per recently used package. The start of the
// query window is passed in REELFOCUS_SINCE as unix milliseconds.
type CommandSource struct {
	Command           string
	Args              []string
	PermissionCommand string
	PermissionArgs    []string
}

// RecentUsage runs the usage command and parses its output.
func (s *CommandSource) RecentUsage(ctx context.Context, since time.Time) ([]UsageEvent, error) {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Env = append(os.Environ(), "REELFOCUS_SINCE="+strconv.FormatInt(since.UnixMilli(), 10))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if isPermissionExit(err) {
			return nil, ErrPermissionDenied
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("usage command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseUsage(out, since)
}

// HasPermission runs the permission command. Without one configured, access
// is assumed and failures surface from RecentUsage instead.
func (s *CommandSource) HasPermission(ctx context.Context) (bool, error) {
	if s.PermissionCommand == "" {
		return true, nil
	}

	err := exec.CommandContext(ctx, s.PermissionCommand, s.PermissionArgs...).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("permission command failed: %w", err)
}

func isPermissionExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == PermissionDeniedExitCode
}

func parseUsage(out []byte, since time.Time) ([]UsageEvent, error) {
	var events []UsageEvent
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage line %d: expected \"<package> <unix-millis>\", got %q", line, text)
		}
		millis, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("usage line %d: invalid timestamp %q", line, fields[1])
		}
		used := time.UnixMilli(millis)
		if used.Before(since) {
			continue
		}
		events = append(events, UsageEvent{PackageID: fields[0], LastUsed: used})
	}
	return events, scanner.Err()
}

// PushSource holds usage reports pushed by an on-device agent through the
// control API.
type PushSource struct {
	mu         sync.RWMutex
	clock      clock.Clock
	lastUsed   map[string]time.Time
	permission bool
}

// NewPushSource creates an empty push source. Permission is assumed until
// the agent reports otherwise.
func NewPushSource(clk clock.Clock) *PushSource {
	return &PushSource{
		clock:      clk,
		lastUsed:   make(map[string]time.Time),
		permission: true,
	}
}

// Report records a foreground observation. A zero LastUsed means now.
func (s *PushSource) Report(event UsageEvent) {
	if event.LastUsed.IsZero() {
		event.LastUsed = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastUsed[event.PackageID]; !ok || event.LastUsed.After(prev) {
		s.lastUsed[event.PackageID] = event.LastUsed
	}
}

// SetPermission records whether the agent can read usage data.
func (s *PushSource) SetPermission(granted bool) {
	s.mu.Lock()
	s.permission = granted
	s.mu.Unlock()
}

// RecentUsage returns the reports at or after since and forgets older ones.
func (s *PushSource) RecentUsage(_ context.Context, since time.Time) ([]UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.permission {
		return nil, ErrPermissionDenied
	}

	events := make([]UsageEvent, 0, len(s.lastUsed))
	for pkg, used := range s.lastUsed {
		if used.Before(since) {
			delete(s.lastUsed, pkg)
			continue
		}
		events = append(events, UsageEvent{PackageID: pkg, LastUsed: used})
	}
	return events, nil
}

// HasPermission reports the last permission state pushed by the agent.
func (s *PushSource) HasPermission(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission, nil
}
