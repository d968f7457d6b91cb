package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"content_creation", "Content-Creation", " publishing "} {
		if _, err := ParseCategory(in); err != nil {
			t.Fatalf("ParseCategory(%q): %v", in, err)
		}
	}
	_, err := ParseCategory("billing")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "category" {
		t.Fatalf("expected category ValidationError, got %v", err)
	}
}

func TestTaskUnmarshalDefaultsEnabled(t *testing.T) {
	t.Parallel()
	var tk Task
	if err := json.Unmarshal([]byte(`{"type":"shorts","parameters":{"topic":"productivity tips"}}`), &tk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tk.Enabled {
		t.Fatal("missing enabled should default to true")
	}
	if err := json.Unmarshal([]byte(`{"type":"shorts","enabled":false}`), &tk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tk.Enabled {
		t.Fatal("explicit false must be kept")
	}
	if err := json.Unmarshal([]byte(`{"type":"shorts","bogus":1}`), &tk); err == nil {
		t.Fatal("unknown fields must be rejected")
	}
}

func TestTaskCloneIsolatesState(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := Task{Category: Publishing, Type: "social", Parameters: Params{"platform": "twitter"}, LastRunAt: &at}
	cp := orig.Clone()
	cp.Parameters["platform"] = "instagram"
	*cp.LastRunAt = at.Add(time.Hour)
	if orig.Parameters["platform"] != "twitter" || !orig.LastRunAt.Equal(at) {
		t.Fatalf("clone shares state: %+v", orig)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		task  Task
		field string
	}{
		{name: "bad category", task: Task{Category: "x", Type: "shorts"}, field: "category"},
		{name: "empty type", task: Task{Category: ContentCreation, Type: "  "}, field: "type"},
		{name: "ok", task: Task{Category: ContentCreation, Type: "shorts"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("want ValidationError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestParamsAccessors(t *testing.T) {
	t.Parallel()
	p := Params{"chapters": float64(7), "with_image": "no", "topic": " ai "}
	if p.Int("chapters", 5) != 7 || p.Int("missing", 5) != 5 {
		t.Fatal("Int accessor mismatch")
	}
	if p.Bool("with_image", true) {
		t.Fatal("Bool accessor mismatch")
	}
	if p.String("topic") != "ai" {
		t.Fatalf("String accessor mismatch: %q", p.String("topic"))
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	base := errors.New("connection reset")
	err := fmt.Errorf("publish: %w", Transient(base))
	if !IsTransient(err) || !errors.Is(err, base) {
		t.Fatalf("transient wrapping lost: %v", err)
	}
	f := Fatal(Fatal(base))
	if !IsFatal(f) || f.Error() != "fatal: connection reset" {
		t.Fatalf("fatal should not double wrap: %v", f)
	}
	if Transient(nil) != nil || Fatal(nil) != nil {
		t.Fatal("nil errors must stay nil")
	}
}

func TestRecordDay(t *testing.T) {
	t.Parallel()
	tk := Task{ID: "t1", Category: Monetization, Type: "sales_report", Parameters: Params{"period": "weekly"}}
	rec := NewRecord(tk, TriggerManual, time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC))
	if rec.Day() != "2026-10-18" || rec.ID == "" || rec.TaskID != "t1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	tk.Parameters["period"] = "monthly"
	if rec.Parameters["period"] != "weekly" {
		t.Fatal("record must snapshot parameters")
	}
}
