package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/krsafety/alertfeed/pkg/models"
)

// Queue wiring constants — shared contract between scheduler and worker.
const (
	// QueueIngest is the asynq queue all poll jobs run on.
	QueueIngest = "ingest"

	// TaskTypePollSource is the single task type; the payload selects the source.
	TaskTypePollSource = "poll-source"

	// MaxRetries bounds queue-level retries of a failed job.
	MaxRetries = 3

	// RetryBaseDelay is the first retry delay; subsequent retries double it.
	RetryBaseDelay = 5 * time.Second
)

// PollSourcePayload is the JSON task payload.
type PollSourcePayload struct {
	SourceID models.Source `json:"source_id"`
}

// JobID returns the stable job identifier for a source's repeatable poll.
func JobID(sourceID models.Source) string {
	return fmt.Sprintf("ingest:%d", sourceID)
}

// NewPollSourceTask builds the asynq task for one source poll.
func NewPollSourceTask(sourceID models.Source) (*asynq.Task, error) {
	payload, err := json.Marshal(PollSourcePayload{SourceID: sourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal poll payload: %w", err)
	}
	return asynq.NewTask(TaskTypePollSource, payload), nil
}

// RetryDelay implements the exponential backoff contract: 5s, 10s, 20s.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := RetryBaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
	}
	return delay
}
