package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/krsafety/alertfeed/pkg/models"
	"github.com/krsafety/alertfeed/pkg/services"
)

// CheckpointStore is the checkpoint access the worker needs.
// Implemented by services.CheckpointService.
type CheckpointStore interface {
	Get(ctx context.Context, sourceID models.Source) (*services.Checkpoint, error)
	Upsert(ctx context.Context, sourceID models.Source, state *string) error
}

// Appender is the event write path. Implemented by events.Writer.
type Appender interface {
	Append(ctx context.Context, event *models.Event) (*models.Event, error)
}

// Worker executes poll jobs from the shared "ingest" queue.
//
// Per job: resolve the adapter, take the per-source single-flight guard,
// load the checkpoint, run the adapter, write every draft, and advance the
// checkpoint only when every insert succeeded. Adapter and insert failures
// are logged, never returned — the queue's retry policy is reserved for
// infrastructure errors and programmer bugs.
type Worker struct {
	server      *asynq.Server
	registry    *Registry
	checkpoints CheckpointStore
	writer      Appender
	now         func() time.Time

	mu      sync.Mutex
	running map[models.Source]struct{}
}

// NewWorker creates a Worker bound to the ingest queue.
func NewWorker(redisOpt asynq.RedisConnOpt, registry *Registry, checkpoints CheckpointStore, writer Appender, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	w := &Worker{
		registry:    registry,
		checkpoints: checkpoints,
		writer:      writer,
		now:         time.Now,
		running:     make(map[models.Source]struct{}),
	}
	w.server = asynq.NewServer(redisOpt, asynq.Config{
		Queues:         map[string]int{QueueIngest: 1},
		Concurrency:    concurrency,
		RetryDelayFunc: RetryDelay,
		ErrorHandler:   asynq.ErrorHandlerFunc(logJobFailure),
		Logger:         slogLogger{},
		LogLevel:       asynq.LogLevel(asynq.WarnLevel),
	})
	return w
}

// Start begins consuming jobs. Non-blocking.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePollSource, w.HandlePollSource)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start ingest worker: %w", err)
	}
	slog.Info("Ingest worker started")
	return nil
}

// Shutdown drains in-flight jobs and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	slog.Info("Ingest worker stopped")
}

// logJobFailure is the queue failure observer.
func logJobFailure(_ context.Context, task *asynq.Task, err error) {
	slog.Error("Ingest job failed", "task", task.Type(), "payload", string(task.Payload()), "error", err)
}

// HandlePollSource runs one poll job. Exported for direct invocation in tests.
func (w *Worker) HandlePollSource(ctx context.Context, task *asynq.Task) error {
	var payload PollSourcePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payload is a programmer error; let the queue retry and archive it.
		return fmt.Errorf("failed to unmarshal poll payload: %w", err)
	}

	adapter, ok := w.registry.Get(payload.SourceID)
	if !ok {
		slog.Warn("No adapter registered for source, dropping job",
			"source_id", payload.SourceID, "job_id", JobID(payload.SourceID))
		return nil
	}

	log := slog.With("source", adapter.SourceID().String())

	if !w.acquire(adapter.SourceID()) {
		log.Info("Poll already in flight on this worker, skipping")
		return nil
	}
	defer w.release(adapter.SourceID())

	state, err := w.loadState(ctx, adapter.SourceID())
	if err != nil {
		log.Error("Failed to load checkpoint, skipping run", "error", err)
		return nil
	}

	fetchedAt := w.now().UTC()

	result, err := adapter.Run(ctx, state)
	if err != nil {
		log.Error("Adapter run failed", "error", err)
		return nil
	}

	allInserted := true
	inserted := 0
	for _, draft := range result.Events {
		event := materialize(adapter.SourceID(), fetchedAt, draft)
		if _, err := w.writer.Append(ctx, event); err != nil {
			log.Error("Failed to insert event, checkpoint will not advance",
				"event_id", event.ID, "title", event.Title, "error", err)
			allInserted = false
			continue
		}
		inserted++
	}

	// The checkpoint advances only on a fully-successful run; a partial run
	// retries with the prior state and relies on adapter dedup to skip the
	// events that already landed.
	if allInserted {
		if err := w.checkpoints.Upsert(ctx, adapter.SourceID(), result.NextState); err != nil {
			log.Error("Failed to advance checkpoint", "error", err)
		}
	}

	if inserted > 0 {
		log.Info("Poll complete", "events", inserted, "all_inserted", allInserted)
	} else {
		log.Debug("Poll complete, no new events")
	}
	return nil
}

// loadState returns the stored checkpoint state, or nil before the first run.
func (w *Worker) loadState(ctx context.Context, sourceID models.Source) (*string, error) {
	cp, err := w.checkpoints.Get(ctx, sourceID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cp.State, nil
}

// materialize completes a draft into a full event record.
func materialize(sourceID models.Source, fetchedAt time.Time, draft Draft) *models.Event {
	return &models.Event{
		ID:         models.NewEventID(),
		Source:     sourceID,
		Kind:       draft.Kind,
		Title:      draft.Title,
		Body:       draft.Body,
		FetchedAt:  fetchedAt,
		OccurredAt: draft.OccurredAt,
		RegionText: draft.RegionText,
		Level:      draft.Level,
		Payload:    draft.Payload,
	}
}

// acquire takes the per-source single-flight guard.
func (w *Worker) acquire(sourceID models.Source) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.running[sourceID]; busy {
		return false
	}
	w.running[sourceID] = struct{}{}
	return true
}

func (w *Worker) release(sourceID models.Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.running, sourceID)
}
