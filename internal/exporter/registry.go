package exporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks in-flight exports so a cancel request can trigger the
// cooperative cancellation signal of a running export.
type Registry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRegistry creates an export registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]context.CancelFunc)}
}

// Register derives a cancellable context for an export. The caller may
// supply its own id (so it can cancel before the response returns); an
// empty id gets a generated one, and an id already in flight is rejected
// rather than hijacking the running export's cancel func. The release func
// must be called when the export finishes.
func (r *Registry) Register(ctx context.Context, id string) (context.Context, string, func(), error) {
	r.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := r.active[id]; exists {
		r.mu.Unlock()
		return nil, "", nil, fmt.Errorf("export %q is already running", id)
	}
	cctx, cancel := context.WithCancel(ctx)
	r.active[id] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
		cancel()
	}
	return cctx, id, release, nil
}

// Cancel triggers the cancellation signal of an in-flight export.
// Returns false when no export with that id is running.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.active[id]
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Active returns the ids of in-flight exports.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}
