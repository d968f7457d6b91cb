package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"autopilot/internal/task"
)

func item(id string) Item {
	return Item{Task: task.Task{ID: id, Category: task.ContentCreation, Type: "shorts"}, Trigger: task.TriggerScheduled}
}

func TestBoundedDispatchNeverDrops(t *testing.T) {
	t.Parallel()
	q := New(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := q.Enqueue(item(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	var got []Item
	for {
		it, ok := q.TryDispatchNext()
		if !ok {
			break
		}
		got = append(got, it)
	}
	if len(got) != 3 || got[0].Task.ID != "a" || got[2].Task.ID != "c" {
		t.Fatalf("first wave = %v", got)
	}
	if q.Len() != 2 || q.InFlight() != 3 {
		t.Fatalf("len=%d inflight=%d", q.Len(), q.InFlight())
	}
	q.Done(got[0])
	it, ok := q.TryDispatchNext()
	if !ok || it.Task.ID != "d" {
		t.Fatalf("after one completion got %v %v", it, ok)
	}
	if _, ok := q.TryDispatchNext(); ok {
		t.Fatal("bound exceeded")
	}
	for _, x := range append(got[1:], it) {
		q.Done(x)
	}
	last, ok := q.TryDispatchNext()
	if !ok || last.Task.ID != "e" {
		t.Fatalf("fifth item lost: %v %v", last, ok)
	}
	q.Done(last)
	if !q.Idle() {
		t.Fatal("queue should be idle")
	}
}

func TestEnqueueSkipsQueuedAndInFlight(t *testing.T) {
	t.Parallel()
	q := New(1)
	if err := q.Enqueue(item("a")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(item("a")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("queued duplicate: %v", err)
	}
	it, _ := q.TryDispatchNext()
	if err := q.Enqueue(item("a")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("in-flight duplicate: %v", err)
	}
	q.Done(it)
	if err := q.Enqueue(item("a")); err != nil {
		t.Fatalf("re-enqueue after Done: %v", err)
	}
}

func TestManualAcquireBlocksDispatchButKeepsOrder(t *testing.T) {
	t.Parallel()
	q := New(2)
	release, err := q.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Enqueue(item("a"))
	_ = q.Enqueue(item("b"))
	it, ok := q.TryDispatchNext()
	if !ok || it.Task.ID != "b" {
		t.Fatalf("expected b while a is held, got %v %v", it, ok)
	}
	if _, ok := q.TryDispatchNext(); ok {
		t.Fatal("a dispatched while its gate is held")
	}
	release()
	release()
	it, ok = q.TryDispatchNext()
	if !ok || it.Task.ID != "a" {
		t.Fatalf("a not dispatched after release: %v %v", it, ok)
	}
}

func TestAcquireWaitsForInFlight(t *testing.T) {
	t.Parallel()
	q := New(1)
	_ = q.Enqueue(item("a"))
	it, _ := q.TryDispatchNext()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Acquire(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("manual run must wait for the in-flight run, got %v", err)
	}

	acquired := make(chan func())
	go func() {
		rel, err := q.Acquire(context.Background(), "b", "a")
		if err == nil {
			acquired <- rel
		}
	}()
	time.Sleep(20 * time.Millisecond)
	q.Done(it)
	select {
	case rel := <-acquired:
		rel()
	case <-time.After(time.Second):
		t.Fatal("Acquire did not proceed after Done")
	}
}

func TestSetLimit(t *testing.T) {
	t.Parallel()
	q := New(0)
	if q.Limit() != 1 {
		t.Fatalf("limit floor = %d", q.Limit())
	}
	for _, id := range []string{"a", "b"} {
		_ = q.Enqueue(item(id))
	}
	_, _ = q.TryDispatchNext()
	if _, ok := q.TryDispatchNext(); ok {
		t.Fatal("bound of 1 exceeded")
	}
	q.SetLimit(2)
	if _, ok := q.TryDispatchNext(); !ok {
		t.Fatal("raised bound not applied")
	}
	snap := q.Snapshot()
	if snap.Limit != 2 || len(snap.InFlight) != 2 || len(snap.Queued) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestDispatchNextCheckHoldsAndDrops(t *testing.T) {
	t.Parallel()
	q := New(2)
	for _, id := range []string{"stale", "busy", "fresh"} {
		if err := q.Enqueue(item(id)); err != nil {
			t.Fatal(err)
		}
	}
	check := func(it Item) (Item, Verdict) {
		switch it.Task.ID {
		case "stale":
			return it, Drop
		case "busy":
			return it, Hold
		}
		it.Task.Type = "blog"
		return it, Run
	}

	it, ok, dropped := q.DispatchNext(check)
	if !ok || it.Task.ID != "fresh" || it.Task.Type != "blog" {
		t.Fatalf("dispatched %+v %v", it, ok)
	}
	if len(dropped) != 1 || dropped[0].Task.ID != "stale" {
		t.Fatalf("dropped %+v", dropped)
	}
	if q.Len() != 1 || q.InFlight() != 1 {
		t.Fatalf("len=%d inflight=%d", q.Len(), q.InFlight())
	}
	// A dropped item was never in flight and may be queued again.
	if err := q.Enqueue(item("stale")); err != nil {
		t.Fatalf("re-enqueue dropped item: %v", err)
	}
	// A held item keeps its gate free for a manual run.
	release, err := q.Acquire(context.Background(), "busy")
	if err != nil {
		t.Fatal(err)
	}
	release()

	next, ok, _ := q.DispatchNext(nil)
	if !ok || next.Task.ID != "busy" {
		t.Fatalf("held item lost its FIFO position: %+v", next)
	}
}
