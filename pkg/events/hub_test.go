package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

type fakeBus struct {
	mu       sync.Mutex
	handler  func(string)
	subErr   error
	subCount int
	unsubbed bool
}

func (f *fakeBus) Subscribe(_ context.Context, handler func(string)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subCount++
	f.handler = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubbed = true
	}, nil
}

func (f *fakeBus) emit(eventID string) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(eventID)
	}
}

type fakeReader struct {
	mu     sync.Mutex
	byID   map[string]*models.Event
	since  []*models.Event
	getErr error
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: event %s", services.ErrNotFound, id)
}

func (f *fakeReader) ListSince(_ context.Context, _ time.Time, _ int) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since, nil
}

func hubEvent(id string) *models.Event {
	return &models.Event{
		ID:        id,
		Source:    models.SourceSafetyMessage,
		Kind:      models.KindFlood,
		Title:     "침수 경보",
		FetchedAt: time.Now().UTC(),
		Level:     models.LevelModerate,
	}
}

func TestHubStart(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		bus := &fakeBus{}
		hub := NewHub(bus, &fakeReader{})
		defer hub.Stop()

		require.NoError(t, hub.Start(context.Background()))
		require.NoError(t, hub.Start(context.Background()))
		assert.Equal(t, 1, bus.subCount, "must subscribe to the bus exactly once")
	})

	t.Run("resets the started flag when subscription fails", func(t *testing.T) {
		bus := &fakeBus{subErr: errors.New("bus unavailable")}
		hub := NewHub(bus, &fakeReader{})

		require.Error(t, hub.Start(context.Background()))

		// A later Start succeeds once the bus recovers.
		bus.mu.Lock()
		bus.subErr = nil
		bus.mu.Unlock()
		require.NoError(t, hub.Start(context.Background()))
		hub.Stop()
	})
}

func TestHubBroadcast(t *testing.T) {
	t.Run("delivers bus-notified events to every subscriber", func(t *testing.T) {
		event := hubEvent("evt-1")
		bus := &fakeBus{}
		hub := NewHub(bus, &fakeReader{byID: map[string]*models.Event{"evt-1": event}})
		require.NoError(t, hub.Start(context.Background()))
		defer hub.Stop()

		c1 := hub.AddClient()
		c2 := hub.AddClient()
		defer hub.RemoveClient(c1)
		defer hub.RemoveClient(c2)

		bus.emit("evt-1")

		assert.Equal(t, event, <-c1.Events())
		assert.Equal(t, event, <-c2.Events())
	})

	t.Run("drops ids that are not yet visible in the log", func(t *testing.T) {
		bus := &fakeBus{}
		hub := NewHub(bus, &fakeReader{byID: map[string]*models.Event{}})
		require.NoError(t, hub.Start(context.Background()))
		defer hub.Stop()

		c := hub.AddClient()
		defer hub.RemoveClient(c)

		bus.emit("unknown")

		select {
		case e := <-c.Events():
			t.Fatalf("unexpected delivery: %v", e)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("evicts a subscriber whose buffer is full", func(t *testing.T) {
		event := hubEvent("evt-1")
		bus := &fakeBus{}
		hub := NewHub(bus, &fakeReader{byID: map[string]*models.Event{"evt-1": event}})
		require.NoError(t, hub.Start(context.Background()))
		defer hub.Stop()

		slow := hub.AddClient() // never drained
		for i := 0; i < clientBuffer+1; i++ {
			bus.emit("evt-1")
		}

		assert.Equal(t, 0, hub.ClientCount(), "slow subscriber must be evicted")

		// The evicted client's channel is closed so its handler unwinds.
		drained := 0
		for range slow.Events() {
			drained++
		}
		assert.Equal(t, clientBuffer, drained)
	})
}

func TestHubCatchUp(t *testing.T) {
	e1 := hubEvent("evt-1")
	e2 := hubEvent("evt-2")
	hub := NewHub(&fakeBus{}, &fakeReader{since: []*models.Event{e1, e2}})

	events, err := hub.CatchUp(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
}

func TestHubStopClearsSubscribers(t *testing.T) {
	bus := &fakeBus{}
	hub := NewHub(bus, &fakeReader{})
	require.NoError(t, hub.Start(context.Background()))

	c := hub.AddClient()
	hub.Stop()

	assert.True(t, bus.unsubbed, "Stop must unsubscribe from the bus")
	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-c.Events()
	assert.False(t, open, "client channels are closed on Stop")
}

// Cross-instance fan-out over a real (in-memory) Redis: a writer on one
// "instance" publishes, the hub of another instance receives, resolves the
// event, and delivers it to its local subscriber.
func TestCrossInstanceFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	// Instance 1: writer side.
	busI1 := NewBus(newClient(), newClient())
	event := hubEvent("evt-cross")
	inserter := &fakeInserter{}
	writer := NewWriter(inserter, busI1)

	// Instance 2: hub side, sharing only Redis and the "database".
	busI2 := NewBus(newClient(), newClient())
	reader := &fakeReader{byID: map[string]*models.Event{event.ID: event}}
	hub := NewHub(busI2, reader)
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Stop()

	client := hub.AddClient()
	defer hub.RemoveClient(client)

	_, err := writer.Append(context.Background(), event)
	require.NoError(t, err)

	select {
	case got := <-client.Events():
		assert.Equal(t, event.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cross-instance delivery")
	}
}
