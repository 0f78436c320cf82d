// Package models defines the normalized event record shared by every
// component: adapters emit it, the event log stores it, the API serves it.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one normalized disaster/safety event. Immutable once written —
// the event log is append-only, so there are no update paths.
//
// Nullable columns are pointers so the JSON encoding carries explicit nulls,
// which clients rely on (the DTO is the record verbatim).
type Event struct {
	ID         string         `json:"id"`
	Source     Source         `json:"source"`
	Kind       Kind           `json:"kind"`
	Title      string         `json:"title"`
	Body       *string        `json:"body"`
	FetchedAt  time.Time      `json:"fetched_at"`
	OccurredAt *time.Time     `json:"occurred_at"`
	RegionText *string        `json:"region_text"`
	Level      Level          `json:"level"`
	Payload    map[string]any `json:"payload"`
}

// Validate checks the event log invariants before insertion.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if !e.Source.Valid() {
		return fmt.Errorf("invalid source %d", e.Source)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid kind %d", e.Kind)
	}
	if e.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if e.FetchedAt.IsZero() {
		return fmt.Errorf("fetched_at is required")
	}
	if !e.Level.Valid() {
		return fmt.Errorf("invalid level %d", e.Level)
	}
	return nil
}

// NewEventID returns a fresh time-ordered event identifier.
//
// UUIDv7 embeds the wall-clock millisecond in its most significant bits, so
// lexicographic order approximates insertion order and ids minted within one
// adapter run (same fetched_at) still sort in emission order. The id doubles
// as the SSE frame id clients dedupe on.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to v4
		// rather than propagate an error nobody can act on.
		return uuid.New().String()
	}
	return id.String()
}
