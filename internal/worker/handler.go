package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/franz/music-pipeline/internal/pipeline"
)

// Handler processes jobs for exactly one stage. Process returns nil on
// success, an error wrapped with pipeline.Permanent when retrying cannot
// help, and any other error for transient failures.
type Handler interface {
	Stage() pipeline.Stage
	Process(ctx context.Context, env pipeline.JobEnvelope) error
}

// FailureRecorder is implemented by handlers that persist permanent
// failures before the job is acknowledged.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, env pipeline.JobEnvelope, cause error) error
}

// Registry maps each stage to the handler that processes it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[pipeline.Stage]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[pipeline.Stage]Handler)}
}

// Register adds h. A second handler for the same stage is an error.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	stage := h.Stage()
	if !stage.Valid() {
		return fmt.Errorf("handler has invalid stage %d", int(stage))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stage]; exists {
		return fmt.Errorf("handler already registered for stage=%s", stage)
	}
	r.handlers[stage] = h
	return nil
}

// Get returns the handler for stage, if any.
func (r *Registry) Get(stage pipeline.Stage) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}

// Select returns the handlers for the named stages, in order.
func (r *Registry) Select(stages ...pipeline.Stage) ([]Handler, error) {
	out := make([]Handler, 0, len(stages))
	for _, s := range stages {
		h, ok := r.Get(s)
		if !ok {
			return nil, fmt.Errorf("no handler registered for stage=%s", s)
		}
		out = append(out, h)
	}
	return out, nil
}
