// Package queue provides the in-process job queue and the outbox dispatcher
// that feeds it from durable job rows.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// VersionPayload is the payload of model processing jobs.
type VersionPayload struct {
	ModelVersionID string `json:"model_version_id"`
}

// JobEnvelope is a claimed job handed to workers. It mirrors the durable
// row; completion and retries are written back through the store.
type JobEnvelope struct {
	JobID      string
	Type       models.JobType
	Payload    string
	Attempt    int
	EnqueuedAt time.Time
}

// Queue is a FIFO handoff between the dispatcher and the worker pool.
type Queue interface {
	// Enqueue blocks while the queue is full, until ctx is cancelled.
	Enqueue(ctx context.Context, env *JobEnvelope) error

	// Dequeue blocks while the queue is empty, until ctx is cancelled.
	Dequeue(ctx context.Context) (*JobEnvelope, error)

	// Close releases blocked callers. Idempotent.
	Close()
}
