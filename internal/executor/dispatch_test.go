package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autopilot/internal/task"
)

func dispatcherWith(t *testing.T, timeout time.Duration, typ string, fn Func) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	reg.Register(Key{Category: task.Publishing, Type: typ}, fn)
	return NewDispatcher(reg, WithTimeouts(func(task.Category) time.Duration { return timeout }))
}

func TestExecuteOutcomes(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	tests := []struct {
		name    string
		fn      Func
		success bool
		reason  string
		errText string
	}{
		{
			name:    "success",
			fn:      func(context.Context, task.Task) (map[string]any, error) { return map[string]any{"ok": 1}, nil },
			success: true,
		},
		{
			name:    "permanent",
			fn:      func(context.Context, task.Task) (map[string]any, error) { return nil, errors.New("bad input") },
			reason:  task.ReasonError,
			errText: "bad input",
		},
		{
			name: "transient",
			fn: func(context.Context, task.Task) (map[string]any, error) {
				return nil, task.Transient(errors.New("upstream 503"))
			},
			reason:  task.ReasonTransient,
			errText: "upstream 503",
		},
		{
			name: "fatal",
			fn: func(context.Context, task.Task) (map[string]any, error) {
				return nil, task.Fatal(errors.New("persist tasks.json: disk full"))
			},
			reason:  task.ReasonFatal,
			errText: "disk full",
		},
		{
			name:    "panic",
			fn:      func(context.Context, task.Task) (map[string]any, error) { panic("boom") },
			reason:  task.ReasonPanic,
			errText: "panic: boom",
		},
		{
			name: "ignores context",
			fn: func(context.Context, task.Task) (map[string]any, error) {
				<-block
				return nil, nil
			},
			reason:  task.ReasonTimeout,
			errText: "timed out",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := dispatcherWith(t, 50*time.Millisecond, "social", tt.fn)
			tk := task.Task{ID: "t1", Category: task.Publishing, Type: "social", Parameters: task.Params{"platform": "twitter"}}
			rec := d.Execute(context.Background(), tk, task.TriggerScheduled)
			if rec.Success != tt.success || rec.Reason != tt.reason {
				t.Fatalf("success=%v reason=%q, want %v %q", rec.Success, rec.Reason, tt.success, tt.reason)
			}
			if !strings.Contains(rec.Error, tt.errText) {
				t.Fatalf("error %q does not mention %q", rec.Error, tt.errText)
			}
			if rec.TaskID != "t1" || rec.Category != task.Publishing || rec.Trigger != task.TriggerScheduled || rec.ID == "" {
				t.Fatalf("record identity: %+v", rec)
			}
			if rec.Parameters.String("platform") != "twitter" {
				t.Fatal("parameters not carried to the record")
			}
		})
	}
}

func TestExecuteUnknownType(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(NewRegistry())
	rec := d.Execute(context.Background(), task.Task{Category: task.Monetization, Type: "crypto"}, task.TriggerManual)
	if rec.Success || rec.Reason != task.ReasonUnknownType {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.Contains(rec.Error, "monetization/crypto") {
		t.Fatalf("error %q", rec.Error)
	}
}

func TestExecuteTimeoutReturnsPromptly(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)
	d := dispatcherWith(t, 20*time.Millisecond, "pending", func(context.Context, task.Task) (map[string]any, error) {
		<-release
		return nil, nil
	})
	began := time.Now()
	rec := d.Execute(context.Background(), task.Task{Category: task.Publishing, Type: "pending"}, task.TriggerScheduled)
	if rec.Reason != task.ReasonTimeout {
		t.Fatalf("reason %q", rec.Reason)
	}
	if took := time.Since(began); took > time.Second {
		t.Fatalf("abandoning took %s", took)
	}
	if rec.Duration <= 0 {
		t.Fatal("duration not recorded")
	}
}

func TestExecutorGetsTaskCopy(t *testing.T) {
	t.Parallel()
	d := dispatcherWith(t, time.Second, "social", func(_ context.Context, tk task.Task) (map[string]any, error) {
		tk.Parameters["platform"] = "mutated"
		return nil, nil
	})
	tk := task.Task{Category: task.Publishing, Type: "social", Parameters: task.Params{"platform": "twitter"}}
	d.Execute(context.Background(), tk, task.TriggerManual)
	if tk.Parameters.String("platform") != "twitter" {
		t.Fatal("executor mutated the caller's parameters")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	k := Key{Category: task.Publishing, Type: "pending"}
	reg.Register(k, Func(func(context.Context, task.Task) (map[string]any, error) { return nil, nil }))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.Register(k, Func(func(context.Context, task.Task) (map[string]any, error) { return nil, nil }))
}
