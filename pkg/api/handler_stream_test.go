package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krsafety/alertfeed/pkg/events"
	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

type fakeBus struct {
	handler func(eventID string)
}

func (f *fakeBus) Subscribe(_ context.Context, handler func(eventID string)) (func(), error) {
	f.handler = handler
	return func() {}, nil
}

type fakeReader struct {
	byID  map[string]*models.Event
	since []*models.Event
}

func (f *fakeReader) GetByID(_ context.Context, id string) (*models.Event, error) {
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeReader) ListSince(_ context.Context, _ time.Time, _ int) ([]*models.Event, error) {
	return f.since, nil
}

// newStreamFixture wires a server whose hub is fed by a capturable bus
// handler, with a fast heartbeat so tests never wait the production 15s.
func newStreamFixture(t *testing.T, reader *fakeReader) (*httptest.Server, *events.Hub, *fakeBus) {
	t.Helper()

	bus := &fakeBus{}
	hub := events.NewHub(bus, reader)
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(hub.Stop)

	s := NewServer(&fakeLister{}, hub, Options{})
	s.heartbeatInterval = 50 * time.Millisecond

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, hub, bus
}

// readStream reads the SSE body until the context deadline and returns
// everything received.
func readStream(t *testing.T, ctx context.Context, url string) string {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	body, _ := io.ReadAll(resp.Body) // terminated by the context deadline
	return string(body)
}

func TestStreamCatchUpThenHeartbeat(t *testing.T) {
	base := time.Date(2025, 12, 25, 5, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		since: []*models.Event{
			testEvent("e1", base.Add(time.Second)),
			testEvent("e2", base.Add(2*time.Second)),
		},
	}
	ts, _, _ := newStreamFixture(t, reader)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	body := readStream(t, ctx, ts.URL+"/events/stream?since="+base.Format(time.RFC3339))

	first := strings.Index(body, "id: e1\n")
	second := strings.Index(body, "id: e2\n")
	ping := strings.Index(body, "event: ping\ndata: keep-alive\n\n")
	require.GreaterOrEqual(t, first, 0, "missing e1 frame: %q", body)
	require.Greater(t, second, first, "e2 must follow e1: %q", body)
	require.Greater(t, ping, second, "keep-alive must follow catch-up: %q", body)
}

func TestStreamLiveDelivery(t *testing.T) {
	event := testEvent("live-1", time.Now().UTC())
	reader := &fakeReader{byID: map[string]*models.Event{"live-1": event}}
	ts, hub, bus := newStreamFixture(t, reader)

	// Publish once the handler has registered its subscriber.
	go func() {
		for i := 0; i < 100; i++ {
			if hub.ClientCount() == 1 {
				bus.handler("live-1")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	body := readStream(t, ctx, ts.URL+"/events/stream")

	assert.Contains(t, body, "id: live-1\n")
	assert.Contains(t, body, `"title":"호우 경보"`)
}

func TestStreamWithoutSinceSkipsCatchUp(t *testing.T) {
	reader := &fakeReader{since: []*models.Event{testEvent("old", time.Now().UTC())}}
	ts, _, _ := newStreamFixture(t, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	body := readStream(t, ctx, ts.URL+"/events/stream")

	assert.NotContains(t, body, "id: old\n")
}

func TestStreamRejectsMalformedSince(t *testing.T) {
	ts, _, _ := newStreamFixture(t, &fakeReader{})

	resp, err := http.Get(ts.URL + "/events/stream?since=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamClientRemovedOnDisconnect(t *testing.T) {
	ts, hub, _ := newStreamFixture(t, &fakeReader{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = readStream(t, ctx, ts.URL+"/events/stream")

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}
