package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CommandName identifies a user command.
type CommandName string

const (
	CommandStart       CommandName = "start"
	CommandStop        CommandName = "stop"
	CommandExtend      CommandName = "extend"
	CommandNextSession CommandName = "next-session"
	CommandTakeBreak   CommandName = "take-break"
)

// ParseCommandName parses a command name case-insensitively, accepting
// underscores in place of dashes.
func ParseCommandName(s string) (CommandName, error) {
	name := CommandName(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch name {
	case CommandStart, CommandStop, CommandExtend, CommandNextSession, CommandTakeBreak:
		return name, nil
	}
	return "", fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, s)
}

// Command is a request from the UI layer, applied atomically between ticks.
type Command struct {
	Name CommandName
	// Duration is the break length for take-break; zero means the default.
	Duration time.Duration
}

// Ack acknowledges a command. Rejected commands are no-ops.
type Ack struct {
	Command  CommandName `json:"command"`
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason,omitempty"`
}

var (
	// ErrInvalidCommand wraps every command rejection.
	ErrInvalidCommand = errors.New("invalid command")

	ErrExtensionUsed     = fmt.Errorf("%w: extension already used this session", ErrInvalidCommand)
	ErrDailyLimitReached = fmt.Errorf("%w: daily session limit reached", ErrInvalidCommand)
	ErrNoSession         = fmt.Errorf("%w: no session has started", ErrInvalidCommand)
	ErrNotCompleted      = fmt.Errorf("%w: session quota not reached", ErrInvalidCommand)
	ErrNotMonitoring     = fmt.Errorf("%w: monitoring is stopped", ErrInvalidCommand)
	ErrNoMonitoredApps   = fmt.Errorf("%w: no monitored apps are enabled", ErrInvalidCommand)
)
