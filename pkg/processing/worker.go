package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/metrics"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/store"
)

// PoolConfig holds worker pool settings.
type PoolConfig struct {
	// Workers is the number of concurrent workers. Minimum 1.
	Workers int

	// MaxAttempts is the total delivery budget per job. Default: 5.
	MaxAttempts int

	// BackoffBase is the first retry delay; each retry doubles it.
	// Default: 2 seconds.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay. Default: 5 minutes.
	BackoffMax time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
}

// Pool drains the queue into registered handlers. Retries are scheduled
// through the durable job rows, not in memory, so they survive restarts.
type Pool struct {
	store    store.Store
	queue    queue.Queue
	handlers Registry
	notifier Notifier
	cfg      PoolConfig
}

// NewPool creates a worker pool.
func NewPool(s store.Store, q queue.Queue, handlers Registry, n Notifier, cfg PoolConfig) *Pool {
	cfg.applyDefaults()
	if n == nil {
		n = NopNotifier{}
	}
	return &Pool{store: s, queue: q, handlers: handlers, notifier: n, cfg: cfg}
}

// Run starts the workers and blocks until the context is cancelled and all
// workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		env, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			logger.Error("dequeue failed", "worker", worker, "error", err)
			continue
		}
		p.process(ctx, env)
	}
}

func (p *Pool) process(ctx context.Context, env *queue.JobEnvelope) {
	handler, ok := p.handlers[env.Type]
	if !ok {
		// Unknown types are drained terminally so they cannot wedge the queue.
		logger.Error("no handler for job type", "job_id", env.JobID, "type", env.Type)
		p.failTerminally(ctx, env, fmt.Sprintf("no handler registered for job type %s", env.Type))
		return
	}

	start := time.Now()
	err := handler.Handle(ctx, env)
	metrics.JobDuration.WithLabelValues(string(env.Type)).Observe(time.Since(start).Seconds())

	if err == nil {
		if cerr := p.store.CompleteJob(ctx, env.JobID, time.Now()); cerr != nil {
			logger.Error("failed to complete job", "job_id", env.JobID, "error", cerr)
		}
		metrics.JobsTotal.WithLabelValues(string(env.Type), "succeeded").Inc()
		return
	}

	attempt := env.Attempt + 1
	if attempt >= p.cfg.MaxAttempts {
		logger.Error("job failed terminally",
			"job_id", env.JobID, "type", env.Type, "attempts", attempt, "error", err)
		p.failTerminally(ctx, env, err.Error())
		return
	}

	delay := p.backoff(attempt)
	logger.Warn("job failed, scheduling retry",
		"job_id", env.JobID, "type", env.Type, "attempt", attempt, "delay", delay, "error", err)
	if rerr := p.store.RequeueJob(ctx, env.JobID, attempt, time.Now().Add(delay), err.Error()); rerr != nil {
		logger.Error("failed to requeue job", "job_id", env.JobID, "error", rerr)
	}
	metrics.JobsTotal.WithLabelValues(string(env.Type), "retried").Inc()
}

// failTerminally marks the job failed and, when the payload names a model
// version, fails that version too.
func (p *Pool) failTerminally(ctx context.Context, env *queue.JobEnvelope, reason string) {
	if err := p.store.FailJob(ctx, env.JobID, reason, time.Now()); err != nil {
		logger.Error("failed to fail job", "job_id", env.JobID, "error", err)
	}
	metrics.JobsTotal.WithLabelValues(string(env.Type), "failed").Inc()

	var payload queue.VersionPayload
	if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil || payload.ModelVersionID == "" {
		return
	}
	if err := p.store.FailVersion(ctx, payload.ModelVersionID, reason); err != nil {
		logger.Error("failed to fail model version",
			"version_id", payload.ModelVersionID, "error", err)
		return
	}
	p.notifier.Notify(Progress{
		JobID:          env.JobID,
		ModelVersionID: payload.ModelVersionID,
		Stage:          string(env.Type),
		IsComplete:     true,
		IsSuccess:      false,
		ErrorMessage:   reason,
	})
}

func (p *Pool) backoff(attempt int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.cfg.BackoffMax {
			return p.cfg.BackoffMax
		}
	}
	if delay > p.cfg.BackoffMax {
		delay = p.cfg.BackoffMax
	}
	return delay
}
