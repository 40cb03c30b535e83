package processing

import (
	"sync"

	"github.com/octopus-bim/octopus/internal/logger"
)

// Progress is a pipeline status event for one model version.
type Progress struct {
	JobID           string `json:"job_id"`
	ModelVersionID  string `json:"model_version_id"`
	Stage           string `json:"stage"`
	PercentComplete int    `json:"percent_complete"`
	Message         string `json:"message,omitempty"`
	IsComplete      bool   `json:"is_complete"`
	IsSuccess       bool   `json:"is_success"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Notifier receives progress events. Implementations must never block for
// long; notifier failures never fail a job.
type Notifier interface {
	Notify(p Progress)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Progress) {}

// Bus is an in-process pub/sub fan-out keyed by model version ID. A slow
// subscriber drops events instead of blocking the pipeline.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Progress]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Progress]struct{})}
}

// Subscribe registers for events of one model version. The returned cancel
// function must be called exactly once.
func (b *Bus) Subscribe(modelVersionID string) (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	b.mu.Lock()
	if b.subs[modelVersionID] == nil {
		b.subs[modelVersionID] = make(map[chan Progress]struct{})
	}
	b.subs[modelVersionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[modelVersionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, modelVersionID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Notify fans the event out to all subscribers of its model version.
func (b *Bus) Notify(p Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[p.ModelVersionID] {
		select {
		case ch <- p:
		default:
			logger.Debug("dropping progress event for slow subscriber",
				"model_version_id", p.ModelVersionID, "stage", p.Stage)
		}
	}
}

var _ Notifier = (*Bus)(nil)
