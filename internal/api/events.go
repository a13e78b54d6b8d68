package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goodtune/reelfocus/internal/metrics"
	"github.com/goodtune/reelfocus/internal/session"
	"github.com/rs/zerolog"
)

const (
	// clientBuffer is how many events a slow subscriber may lag behind
	// before events are dropped for it.
	clientBuffer = 64

	keepAliveInterval = 15 * time.Second
)

// Event is one effect as delivered on the event stream.
type Event struct {
	Type session.EffectKind `json:"type"`
	Data session.Effect     `json:"data"`
	At   time.Time          `json:"at"`
}

type subscriber struct {
	id     int
	events chan []byte
}

// Broadcaster fans engine effects out to event-stream subscribers. It
// implements session.Presenter and never blocks the engine.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[int]*subscriber
	nextID  int
	logger  zerolog.Logger
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[int]*subscriber),
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// Present broadcasts e to every subscriber.
func (b *Broadcaster) Present(e session.Effect) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.clients) == 0 {
		return
	}

	data, err := json.Marshal(Event{Type: e.Kind(), Data: e, At: time.Now()})
	if err != nil {
		b.logger.Error().Err(err).Str("type", string(e.Kind())).Msg("Failed to marshal event")
		return
	}
	msg := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Kind(), data))

	for _, c := range b.clients {
		select {
		case c.events <- msg:
		default:
			b.logger.Debug().Int("client", c.id).Msg("Subscriber lagging, event dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) subscribe() *subscriber {
	b.mu.Lock()
	b.nextID++
	c := &subscriber{id: b.nextID, events: make(chan []byte, clientBuffer)}
	b.clients[c.id] = c
	count := len(b.clients)
	b.mu.Unlock()

	metrics.EventSubscribers.Set(float64(count))
	b.logger.Debug().Int("client", c.id).Int("total_clients", count).Msg("Event subscriber connected")
	return c
}

func (b *Broadcaster) unsubscribe(c *subscriber) {
	b.mu.Lock()
	delete(b.clients, c.id)
	count := len(b.clients)
	b.mu.Unlock()

	metrics.EventSubscribers.Set(float64(count))
	b.logger.Debug().Int("client", c.id).Int("total_clients", count).Msg("Event subscriber disconnected")
}

// HandleSSE streams effects to the client until it disconnects.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := b.subscribe()
	defer b.unsubscribe(c)

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": connected %d\n\n", c.id)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-c.events:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
