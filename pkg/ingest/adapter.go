// Package ingest contains the source adapter framework and the distributed
// polling machinery: a registry of adapters, an asynq-backed scheduler that
// fires one repeatable job per source, and the worker that executes polls
// with single-flight and checkpoint-guarded at-least-once delivery.
package ingest

import (
	"context"
	"time"

	"github.com/krsafety/alertfeed/pkg/models"
)

// Draft is a partially populated event emitted by an adapter. The worker
// assigns ID, Source and FetchedAt before writing.
type Draft struct {
	Kind       models.Kind
	Title      string
	Body       *string
	OccurredAt *time.Time
	RegionText *string
	Level      models.Level
	Payload    map[string]any
}

// Result is one adapter run's output: zero or more drafts in emission order
// plus the opaque state to checkpoint once every draft is persisted.
type Result struct {
	Events    []Draft
	NextState *string
}

// Adapter is the uniform contract around one upstream source.
//
// Run receives the prior checkpoint state (nil on first run) and returns
// drafts plus the next state. Transport failures, timeouts, and parse
// failures must be absorbed — return an empty Result carrying the prior
// state — so an error from Run signals a programmer bug, nothing else.
// Every outbound request inside Run must carry a bounded timeout.
//
// The framework schedules at least once; the adapter owns dedup across runs
// through its state (watermark, snapshot hash, or seen-set). In-memory
// fields (clock offsets etc.) are permitted but must never be required for
// correctness across restarts.
type Adapter interface {
	SourceID() models.Source
	PollInterval() time.Duration
	Run(ctx context.Context, state *string) (Result, error)
}
