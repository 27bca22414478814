package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"redub/internal/queue"
)

// Processor executes one task identified by id.
type Processor interface {
	Process(ctx context.Context, taskID string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, taskID string) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, taskID string) error { return f(ctx, taskID) }

// Registry is the dispatch table from task kind to processor.
type Registry struct {
	mu         sync.RWMutex
	processors map[queue.Kind]Processor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[queue.Kind]Processor, len(queue.Kinds()))}
}

// Register binds kind to p, replacing any previous binding.
func (r *Registry) Register(kind queue.Kind, p Processor) error {
	if _, ok := queue.ParseKind(string(kind)); !ok {
		return fmt.Errorf("register processor: unknown task kind %q", kind)
	}
	if p == nil {
		return fmt.Errorf("register processor: nil processor for %s", kind)
	}
	r.mu.Lock()
	r.processors[kind] = p
	r.mu.Unlock()
	return nil
}

// Lookup returns the processor bound to kind.
func (r *Registry) Lookup(kind queue.Kind) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[kind]
	return p, ok
}

// Validate fails unless every task kind has a processor.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, kind := range queue.Kinds() {
		if _, ok := r.processors[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no processor registered for task kinds: %s", strings.Join(missing, ", "))
	}
	return nil
}
