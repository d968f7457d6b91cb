package engine

import (
	"context"
	"sort"
	"sync"
)

// gate is a per-task non-overlap token: a channel semaphore of size one.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{}
	return g
}

func (g *gate) tryAcquire() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *gate) acquire(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	// Never block on release.
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

// gateStore holds one gate per task key. Gates are never removed; the key
// space is bounded by the task list.
type gateStore struct {
	mu    sync.Mutex
	gates map[string]*gate
}

func (s *gateStore) get(key string) *gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = make(map[string]*gate)
	}
	g := s.gates[key]
	if g == nil {
		g = newGate()
		s.gates[key] = g
	}
	return g
}

// acquireAll waits for every key's gate in sorted order so two callers with
// overlapping key sets cannot deadlock. On error nothing stays held.
func (s *gateStore) acquireAll(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	held := make([]*gate, 0, len(sorted))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].release()
		}
	}
	var prev string
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		g := s.get(k)
		if err := g.acquire(ctx); err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, g)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
