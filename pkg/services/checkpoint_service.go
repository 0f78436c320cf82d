package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/krsafety/alertfeed/pkg/models"
)

// Checkpoint is a source's resumable ingest position. State is opaque to
// everything but the owning adapter — it may be a scalar, a hash, or JSON,
// and the framework never inspects it.
type Checkpoint struct {
	SourceID  models.Source
	State     *string
	UpdatedAt time.Time
}

// CheckpointService owns the ingest_checkpoints table. Upsert is the only
// write path; rows are never deleted.
type CheckpointService struct {
	db  DB
	now func() time.Time
}

// NewCheckpointService creates a CheckpointService on the given pool.
func NewCheckpointService(db DB) *CheckpointService {
	return &CheckpointService{db: db, now: time.Now}
}

// Get returns the checkpoint for a source, or ErrNotFound before the
// source's first successful run.
func (s *CheckpointService) Get(ctx context.Context, sourceID models.Source) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.QueryRow(ctx,
		`SELECT source_id, state, updated_at FROM ingest_checkpoints WHERE source_id = $1`,
		sourceID,
	).Scan(&cp.SourceID, &cp.State, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: checkpoint for source %s", ErrNotFound, sourceID)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

// Upsert inserts or replaces a source's checkpoint, stamping updated_at.
// Single-row upsert keyed by source_id makes concurrent writers safe.
func (s *CheckpointService) Upsert(ctx context.Context, sourceID models.Source, state *string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO ingest_checkpoints (source_id, state, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		sourceID, state, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint for source %s: %w", sourceID, err)
	}
	return nil
}
