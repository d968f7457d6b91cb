package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	failed, unsubFailed := b.Subscribe(4, TaskFailed)
	defer unsubFailed()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: TaskStarted})
	b.Publish(Event{Type: TaskFailed, Data: "boom"})

	select {
	case e := <-failed:
		if e.Type != TaskFailed || e.Data != "boom" || e.Time.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber got nothing")
	}
	if len(failed) != 0 {
		t.Fatal("filtered subscriber received other types")
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TaskFinished})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if Dropped(b) != 99 {
		t.Fatalf("dropped = %d, want 99", Dropped(b))
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: TaskStarted})
}
