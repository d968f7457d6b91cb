// Package engine holds the admission queue between due detection and execution.
//
// The queue is FIFO and bounded only in how many items may be in flight; it
// never drops work because of that bound. Each task key has a non-overlap
// gate: a task is never queued twice, never dispatched while a previous run
// of it is in flight, and manual runs wait on the same gate.
package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"autopilot/internal/task"
)

var ErrDuplicate = errors.New("task already queued or in flight")

// Item is one admission: a task snapshot plus what triggered it.
type Item struct {
	Task       task.Task
	Trigger    task.Trigger
	EnqueuedAt time.Time
}

func (it Item) Key() string { return it.Task.Key() }

type Queue struct {
	mu       sync.Mutex
	items    []Item
	queued   map[string]bool
	inflight map[string]time.Time
	limit    int

	gates gateStore
}

// New returns a queue allowing limit concurrent dispatches (minimum 1).
func New(limit int) *Queue {
	return &Queue{
		queued:   make(map[string]bool),
		inflight: make(map[string]time.Time),
		limit:    max(limit, 1),
	}
}

// Enqueue admits it at the tail. It returns ErrDuplicate when the same task is
// already waiting or running.
func (q *Queue) Enqueue(it Item) error {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	k := it.Key()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued[k] {
		return ErrDuplicate
	}
	if _, running := q.inflight[k]; running {
		return ErrDuplicate
	}
	q.items = append(q.items, it)
	q.queued[k] = true
	return nil
}

// Verdict is a dispatch-time decision about the oldest runnable item.
type Verdict int

const (
	// Run hands the item out.
	Run Verdict = iota
	// Hold leaves the item queued in its FIFO position.
	Hold
	// Drop removes the item without dispatching it.
	Drop
)

// TryDispatchNext removes and returns the oldest item whose gate is free.
// It returns false when the in-flight bound is reached or nothing is runnable.
// The caller must call Done exactly once for every dispatched item.
func (q *Queue) TryDispatchNext() (Item, bool) {
	it, ok, _ := q.DispatchNext(nil)
	return it, ok
}

// DispatchNext is TryDispatchNext with a check that runs while the item's
// gate is held, so no other run of the task can start or finish meanwhile.
// The check may return a refreshed item with the same key. Dropped items are
// returned so the caller can report them; they were never dispatched.
func (q *Queue) DispatchNext(check func(Item) (Item, Verdict)) (Item, bool, []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var dropped []Item
	if len(q.inflight) >= q.limit {
		return Item{}, false, nil
	}
	for i := 0; i < len(q.items); {
		it := q.items[i]
		k := it.Key()
		g := q.gates.get(k)
		if !g.tryAcquire() {
			// Held by a manual run; keep FIFO position and look further.
			i++
			continue
		}
		verdict := Run
		if check != nil {
			var next Item
			next, verdict = check(it)
			if verdict == Run && next.Key() == k {
				it = next
			}
		}
		switch verdict {
		case Hold:
			g.release()
			i++
			continue
		case Drop:
			g.release()
			q.items = slices.Delete(q.items, i, i+1)
			delete(q.queued, k)
			dropped = append(dropped, it)
			continue
		}
		q.items = slices.Delete(q.items, i, i+1)
		delete(q.queued, k)
		q.inflight[k] = time.Now()
		return it, true, dropped
	}
	return Item{}, false, dropped
}

// Done releases the in-flight slot and the gate of a dispatched item.
func (q *Queue) Done(it Item) {
	k := it.Key()
	q.mu.Lock()
	_, ok := q.inflight[k]
	delete(q.inflight, k)
	q.mu.Unlock()
	if ok {
		q.gates.get(k).release()
	}
}

// Acquire blocks until the gates of all keys are free and holds them for a
// run outside the queue. The in-flight bound does not apply.
func (q *Queue) Acquire(ctx context.Context, keys ...string) (release func(), err error) {
	return q.gates.acquireAll(ctx, keys)
}

// SetLimit changes the in-flight bound; running items are never interrupted.
func (q *Queue) SetLimit(n int) {
	q.mu.Lock()
	q.limit = max(n, 1)
	q.mu.Unlock()
}

func (q *Queue) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Idle reports an empty queue with nothing in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && len(q.inflight) == 0
}

// Snapshot is a point-in-time view for status output.
type Snapshot struct {
	Limit    int          `json:"limit"`
	Queued   []QueuedItem `json:"queued"`
	InFlight []string     `json:"in_flight"`
}

type QueuedItem struct {
	Task       string       `json:"task"`
	Trigger    task.Trigger `json:"trigger"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := Snapshot{Limit: q.limit, Queued: make([]QueuedItem, 0, len(q.items)), InFlight: make([]string, 0, len(q.inflight))}
	for _, it := range q.items {
		snap.Queued = append(snap.Queued, QueuedItem{Task: it.Task.String(), Trigger: it.Trigger, EnqueuedAt: it.EnqueuedAt})
	}
	for k := range q.inflight {
		snap.InFlight = append(snap.InFlight, k)
	}
	slices.Sort(snap.InFlight)
	return snap
}
