package queue

import (
	"context"
	"errors"
	"time"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/store"
)

// DispatcherConfig holds outbox dispatcher settings.
type DispatcherConfig struct {
	// PollInterval is how often the outbox is polled for due jobs.
	// Default: 1 second.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll. Default: 32.
	BatchSize int
}

// Dispatcher moves due pending job rows from the outbox into the in-process
// queue. Claimed rows are marked inflight; a crash between claim and
// completion is recovered at startup by resetting inflight rows to pending,
// giving at-least-once delivery.
type Dispatcher struct {
	store store.Store
	queue Queue
	cfg   DispatcherConfig
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(s store.Store, q Queue, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	return &Dispatcher{store: s, queue: q, cfg: cfg}
}

// Recover returns stranded inflight jobs to pending. Call once before Run.
func (d *Dispatcher) Recover(ctx context.Context) error {
	n, err := d.store.ResetInflightJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("recovered stranded jobs", "count", n)
	}
	return nil
}

// Run polls the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	jobs, err := d.store.ClaimDueJobs(ctx, time.Now(), d.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to claim due jobs", "error", err)
		return
	}
	for _, job := range jobs {
		env := &JobEnvelope{
			JobID:      job.ID,
			Type:       job.Type,
			Payload:    job.Payload,
			Attempt:    job.Attempt,
			EnqueuedAt: time.Now(),
		}
		if err := d.queue.Enqueue(ctx, env); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
				// The row stays inflight; Recover re-delivers it next start.
				return
			}
			logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		}
	}
}
