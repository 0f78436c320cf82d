package ingest

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// taskRegistrar is the slice of asynq.Scheduler the Scheduler uses.
// Split out so registration logic is testable without Redis.
type taskRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// Scheduler installs one repeatable poll job per registered adapter.
//
// Each fire is enqueued with a uniqueness lock spanning the poll interval,
// so when several ingest-enabled instances run the same schedule only one
// enqueue per window lands on the shared queue. Registration is idempotent
// across restarts: the schedule lives in this process, keyed by the stable
// JobID, and a restart simply re-registers it.
type Scheduler struct {
	registrar taskRegistrar
	scheduler *asynq.Scheduler
	registry  *Registry
}

// NewScheduler creates a Scheduler over the shared Redis queue.
func NewScheduler(redisOpt asynq.RedisConnOpt, registry *Registry) *Scheduler {
	sched := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   slogLogger{},
		LogLevel: asynq.LogLevel(asynq.WarnLevel),
	})
	return &Scheduler{registrar: sched, scheduler: sched, registry: registry}
}

// Start registers every adapter's repeatable job and starts the scheduler.
func (s *Scheduler) Start() error {
	if err := s.registerAll(); err != nil {
		return err
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start ingest scheduler: %w", err)
	}
	slog.Info("Ingest scheduler started", "sources", len(s.registry.List()))
	return nil
}

// Shutdown stops the scheduler; in-flight enqueues complete first.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}

// registerAll installs one entry per adapter, skipping any adapter with a
// non-positive poll interval.
func (s *Scheduler) registerAll() error {
	for _, adapter := range s.registry.List() {
		interval := adapter.PollInterval()
		if interval <= 0 {
			slog.Warn("Skipping adapter with non-positive poll interval",
				"source", adapter.SourceID().String(), "interval", interval)
			continue
		}

		task, err := NewPollSourceTask(adapter.SourceID())
		if err != nil {
			return err
		}

		// Unique(interval), not a fixed TaskID: a task id survives into the
		// archived set when all retries fail, and a stable id there would
		// block every later fire of that source. The uniqueness lock expires
		// with the window, so one enqueue per interval still holds; JobID
		// stays the logical identity for logs and failure reporting.
		entryID, err := s.registrar.Register(
			fmt.Sprintf("@every %s", interval),
			task,
			asynq.Queue(QueueIngest),
			asynq.MaxRetry(MaxRetries),
			asynq.Unique(interval),
		)
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", JobID(adapter.SourceID()), err)
		}

		slog.Info("Registered repeatable ingest job",
			"job_id", JobID(adapter.SourceID()),
			"entry_id", entryID,
			"interval", interval)
	}
	return nil
}
