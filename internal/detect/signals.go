package detect

import (
	"sync"
	"time"
)

// SignalBoard holds the latest result published by the pattern-based
// signal source.
type SignalBoard struct {
	mu     sync.RWMutex
	latest *Result
}

// NewSignalBoard creates an empty signal board.
func NewSignalBoard() *SignalBoard {
	return &SignalBoard{}
}

// Publish replaces the latest pattern result.
func (b *SignalBoard) Publish(r Result) {
	r.Method = MethodPattern
	b.mu.Lock()
	b.latest = &r
	b.mu.Unlock()
}

// PublishTree scores a UI tree snapshot captured at the given time and
// publishes the outcome.
func (b *SignalBoard) PublishTree(m *PatternMatcher, root *Node, packageID string, at time.Time) (Result, Analysis) {
	analysis := m.Analyze(root, packageID)
	r := Result{
		PackageID:  packageID,
		Engaged:    analysis.Engaged(),
		Confidence: analysis.Confidence,
		Method:     MethodPattern,
		Timestamp:  at,
	}
	b.Publish(r)
	return r, analysis
}

// Latest returns the most recently published result.
func (b *SignalBoard) Latest() (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Result{}, false
	}
	return *b.latest, true
}
