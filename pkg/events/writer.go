package events

import (
	"context"
	"log/slog"

	"github.com/krsafety/alertfeed/pkg/models"
)

// EventInserter is the event log write path used by the Writer.
// Implemented by services.EventService.
type EventInserter interface {
	Insert(ctx context.Context, event *models.Event) error
}

// Publisher is the bus publish path used by the Writer.
type Publisher interface {
	Publish(ctx context.Context, eventID string) error
}

// Writer is the single insert path for normalized events: persist the row,
// then notify every instance's hub over the bus.
type Writer struct {
	events EventInserter
	bus    Publisher
}

// NewWriter creates a Writer.
func NewWriter(events EventInserter, bus Publisher) *Writer {
	return &Writer{events: events, bus: bus}
}

// Append persists one event and best-effort publishes its id on the bus.
// A publish failure is logged and swallowed: the event is durable either
// way, and clients discover it via `since` catch-up on reconnect. An insert
// failure is returned and nothing is published.
func (w *Writer) Append(ctx context.Context, event *models.Event) (*models.Event, error) {
	if err := w.events.Insert(ctx, event); err != nil {
		return nil, err
	}

	if err := w.bus.Publish(ctx, event.ID); err != nil {
		slog.Warn("Failed to publish event id on bus",
			"event_id", event.ID, "source", event.Source.String(), "error", err)
	}
	return event, nil
}
