// Package services contains the persistence layer: one service per
// aggregate, each a thin typed wrapper over SQL against the pgx pool.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krsafety/alertfeed/pkg/models"
)

// DB is the subset of pgxpool.Pool the services use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// List bounds. Limit requests above ListMaxLimit are rejected, zero means
// ListDefaultLimit.
const (
	ListDefaultLimit      = 50
	ListMaxLimit          = 200
	ListSinceDefaultLimit = 500
)

const uniqueViolationCode = "23505"

// EventService owns the append-only event log: inserts and ordered reads.
type EventService struct {
	db DB
}

// NewEventService creates an EventService on the given pool.
func NewEventService(db DB) *EventService {
	return &EventService{db: db}
}

const eventColumns = "id, source, kind, title, body, fetched_at, occurred_at, region_text, level, payload"

// Insert persists one event row. The caller provides every field; nothing
// is assigned here. A duplicate id returns ErrAlreadyExists.
func (s *EventService) Insert(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	var payload []byte
	if event.Payload != nil {
		var err error
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.Source, event.Kind, event.Title, event.Body,
		event.FetchedAt, event.OccurredAt, event.RegionText, event.Level, payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: event %s", ErrAlreadyExists, event.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetByID returns one event or ErrNotFound.
func (s *EventService) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListParams filters List. Nil Kind/Source means no predicate on that column.
type ListParams struct {
	Limit  int
	Kind   *models.Kind
	Source *models.Source
}

// List returns events ordered by fetched_at DESC (ties broken by id DESC so
// pagination is stable). Filters are ANDed.
func (s *EventService) List(ctx context.Context, params ListParams) ([]*models.Event, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = ListDefaultLimit
	}
	if limit > ListMaxLimit {
		return nil, fmt.Errorf("%w: limit %d exceeds maximum %d", ErrInvalidInput, limit, ListMaxLimit)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	args := make([]any, 0, 3)
	where := ""
	if params.Kind != nil {
		args = append(args, *params.Kind)
		where = fmt.Sprintf(" WHERE kind = $%d", len(args))
	}
	if params.Source != nil {
		args = append(args, *params.Source)
		if where == "" {
			where = fmt.Sprintf(" WHERE source = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND source = $%d", len(args))
		}
	}
	args = append(args, limit)
	query += where + fmt.Sprintf(" ORDER BY fetched_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListSince returns events with fetched_at strictly after since, ordered
// ascending (ties broken by id ASC). This is the catch-up read path: given
// the last-seen fetched_at, the next call returns strictly later events.
func (s *EventService) ListSince(ctx context.Context, since time.Time, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = ListSinceDefaultLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE fetched_at > $1
		 ORDER BY fetched_at ASC, id ASC
		 LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*models.Event, error) {
	events := make([]*models.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event row iteration failed: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var event models.Event
	var payload []byte
	if err := row.Scan(
		&event.ID, &event.Source, &event.Kind, &event.Title, &event.Body,
		&event.FetchedAt, &event.OccurredAt, &event.RegionText, &event.Level, &payload,
	); err != nil {
		return nil, err
	}
	if payload != nil {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
	}
	return &event, nil
}
