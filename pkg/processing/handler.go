// Package processing runs the background pipeline: a worker pool draining
// the job queue into per-type handlers that convert IFC sources to WexBIM
// and extract element properties.
package processing

import (
	"context"

	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/queue"
)

// Handler processes one job envelope. A nil return completes the job; an
// error schedules a retry until the attempt budget is spent.
type Handler interface {
	Handle(ctx context.Context, env *queue.JobEnvelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *queue.JobEnvelope) error

func (f HandlerFunc) Handle(ctx context.Context, env *queue.JobEnvelope) error {
	return f(ctx, env)
}

// Registry maps job types to their handlers.
type Registry map[models.JobType]Handler
