package systemd

import (
	"fmt"
	"net"
	"os"

	"github.com/coreos/go-systemd/v22/activation"
)

// Listener names as set by FileDescriptorName= in reelfocus.socket
const (
	ListenerAPI     = "api"
	ListenerMetrics = "metrics"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation.
func GetListeners() (*Listeners, error) {
	// Check if systemd socket activation is available
	if os.Getenv("LISTEN_FDS") == "" {
		return &Listeners{}, nil
	}

	// Named listeners require systemd 227+
	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	return fromNamed(named), nil
}

func fromNamed(named map[string][]net.Listener) *Listeners {
	listeners := &Listeners{}
	if len(named) == 0 {
		return listeners
	}
	listeners.Activated = true

	if lns, ok := named[ListenerAPI]; ok && len(lns) > 0 {
		listeners.API = lns[0]
	}
	if lns, ok := named[ListenerMetrics]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}
	return listeners
}

// Close closes any listener that was handed over but not used.
func (l *Listeners) Close() {
	for _, ln := range []net.Listener{l.API, l.Metrics} {
		if ln != nil {
			_ = ln.Close()
		}
	}
}
