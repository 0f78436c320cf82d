package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/krsafety/alertfeed/pkg/models"
)

// heartbeatInterval is how often an idle SSE connection writes a keep-alive
// frame so intermediaries don't reap it.
const heartbeatInterval = 15 * time.Second

// streamHandler handles GET /events/stream.
//
// The connection first replays events newer than the optional `since`
// timestamp from the log, then switches to live delivery from the hub. The
// handoff is not atomic; an event inserted in between can arrive twice, and
// clients dedupe on the frame id.
func (s *Server) streamHandler(c echo.Context) error {
	var since *time.Time
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since: must be RFC3339")
		}
		since = &t
	}

	res := c.Response()
	h := res.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if since != nil {
		missed, err := s.hub.CatchUp(c.Request().Context(), *since)
		if err != nil {
			slog.Error("SSE catch-up failed", "since", *since, "error", err)
		}
		for _, event := range missed {
			if err := writeEventFrame(res, event); err != nil {
				return nil
			}
		}
		res.Flush()
	}

	client := s.hub.AddClient()
	defer s.hub.RemoveClient(client)

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case event, ok := <-client.Events():
			if !ok {
				// Evicted by the hub or the hub stopped.
				return nil
			}
			if err := writeEventFrame(res, event); err != nil {
				return nil
			}
			res.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(res, "event: ping\ndata: keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEventFrame(w io.Writer, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, data)
	return err
}
