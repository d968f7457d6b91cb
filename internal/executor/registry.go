// Package executor resolves (category, type) pairs to executors and runs them
// under a deadline, turning every outcome into an ExecutionRecord.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"autopilot/internal/task"
)

// Executor performs one task. The result map is stored verbatim on the record.
//
// Implementations should honor ctx; one that does not is abandoned at the
// deadline and its late result is discarded.
type Executor interface {
	Execute(ctx context.Context, t task.Task) (map[string]any, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, t task.Task) (map[string]any, error)

func (f Func) Execute(ctx context.Context, t task.Task) (map[string]any, error) { return f(ctx, t) }

// Key is the dispatch key.
type Key struct {
	Category task.Category
	Type     string
}

func (k Key) String() string { return string(k.Category) + "/" + k.Type }

// Registry is an enumerable map of executors.
type Registry struct {
	mu sync.RWMutex
	m  map[Key]Executor
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[Key]Executor)}
}

// Register binds k to e. Registering the same key twice is a programming error.
func (r *Registry) Register(k Key, e Executor) {
	if e == nil {
		panic(fmt.Sprintf("executor: nil executor for %s", k))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.m[k]; dup {
		panic(fmt.Sprintf("executor: %s registered twice", k))
	}
	r.m[k] = e
}

func (r *Registry) Resolve(k Key) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[k]
	return e, ok
}

// Keys lists registered keys sorted by category then type.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}
