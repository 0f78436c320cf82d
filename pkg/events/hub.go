package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

// EventReader is the event log read path used by the hub for broadcast
// lookups and catch-up. Implemented by services.EventService.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*models.Event, error)
}

// BusSubscriber is the bus subscription path used by the hub.
type BusSubscriber interface {
	Subscribe(ctx context.Context, handler func(eventID string)) (func(), error)
}

// clientBuffer is the per-subscriber event buffer. A subscriber that falls
// this far behind a broadcast is evicted rather than allowed to stall the
// dispatch loop.
const clientBuffer = 64

// lookupTimeout bounds the DB read performed for each bus message.
const lookupTimeout = 5 * time.Second

// Client is one live SSE subscriber on this instance. The HTTP handler
// drains Events() and writes frames; the hub owns registration and eviction.
type Client struct {
	ch chan *models.Event
}

// Events returns the stream of events to deliver to this subscriber.
// The channel is closed when the hub evicts the client or stops.
func (c *Client) Events() <-chan *models.Event {
	return c.ch
}

// Hub is the per-instance fan-out component: it subscribes to the bus once,
// resolves each notified id against the event log, and broadcasts the event
// to every registered subscriber. The subscriber set is exclusively owned by
// the hub and never shared across instances.
type Hub struct {
	bus    BusSubscriber
	events EventReader

	mu          sync.Mutex
	clients     map[*Client]struct{}
	started     bool
	unsubscribe func()
}

// NewHub creates a Hub.
func NewHub(bus BusSubscriber, events EventReader) *Hub {
	return &Hub{
		bus:     bus,
		events:  events,
		clients: make(map[*Client]struct{}),
	}
}

// Start subscribes to the bus. Idempotent: a second call while started is a
// no-op. If the subscription fails the started flag is reset so a later
// Start can retry; there is no internal retry loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	unsubscribe, err := h.bus.Subscribe(ctx, h.handleBusMessage)
	if err != nil {
		h.mu.Lock()
		h.started = false
		h.mu.Unlock()
		slog.Error("Hub failed to subscribe to event bus", "error", err)
		return err
	}

	h.mu.Lock()
	h.unsubscribe = unsubscribe
	h.mu.Unlock()
	slog.Info("SSE hub started")
	return nil
}

// Stop unsubscribes from the bus and drops every subscriber.
func (h *Hub) Stop() {
	h.mu.Lock()
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.started = false
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for c := range clients {
		close(c.ch)
	}
	slog.Info("SSE hub stopped")
}

// AddClient registers a new subscriber and returns its handle. The caller
// must call RemoveClient when the connection ends.
func (h *Hub) AddClient() *Client {
	c := &Client{ch: make(chan *models.Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// RemoveClient unregisters a subscriber. Safe to call after eviction.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount returns the number of live subscribers on this instance.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CatchUp returns the events a reconnecting client missed since the given
// time, oldest first. The caller writes them as SSE frames before draining
// the live channel; an event inserted in between may be delivered twice,
// which clients absorb by deduping on event id.
func (h *Hub) CatchUp(ctx context.Context, since time.Time) ([]*models.Event, error) {
	return h.events.ListSince(ctx, since, 0)
}

// handleBusMessage resolves a notified event id and broadcasts the event.
// Runs on the bus subscription goroutine, one message at a time.
func (h *Hub) handleBusMessage(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	event, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Possibly a replica read racing the writer's insert; the event
			// is still reachable via catch-up.
			slog.Debug("Bus-notified event not yet visible, dropping", "event_id", eventID)
			return
		}
		slog.Error("Failed to load bus-notified event", "event_id", eventID, "error", err)
		return
	}

	h.broadcast(event)
}

// broadcast delivers one event to every subscriber. Writes are sequential;
// a subscriber whose buffer is full is evicted and its channel closed so
// its handler unwinds.
func (h *Hub) broadcast(event *models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.ch <- event:
		default:
			delete(h.clients, c)
			close(c.ch)
			slog.Warn("Evicting slow SSE subscriber", "event_id", event.ID)
		}
	}
}
