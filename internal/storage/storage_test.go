package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "logs")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	out["file"] = fs
	ss, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "history.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	out["sqlite"] = ss
	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func rec(cat task.Category, typ string, ok bool, at time.Time) task.ExecutionRecord {
	r := task.NewRecord(task.Task{ID: "t-" + typ, Category: cat, Type: typ}, task.TriggerScheduled, at)
	r.Success = ok
	if !ok {
		r.Reason = task.ReasonError
		r.Error = "boom"
	}
	return r
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := []task.ExecutionRecord{
				rec(task.ContentCreation, "shorts", true, now.Add(-2*time.Hour)),
				rec(task.Publishing, "social", false, now.Add(-1*time.Hour)),
				rec(task.ContentCreation, "blog", true, now.AddDate(0, 0, -3)),
				rec(task.ContentCreation, "ebook", true, now.AddDate(0, 0, -20)),
			}
			for _, r := range in {
				if err := st.Append(ctx, r); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			all, err := st.Query(ctx, Query{Days: 7, Now: now})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("want 3 records in 7 days, got %d", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i].Timestamp.After(all[i-1].Timestamp) {
					t.Fatalf("records not newest first: %v", all)
				}
			}
			if all[0].Type != "social" {
				t.Fatalf("newest should be social, got %s", all[0].Type)
			}

			content, err := st.Query(ctx, Query{Days: 7, Now: now, Category: task.ContentCreation, SuccessOnly: true})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(content) != 2 {
				t.Fatalf("want 2 successful content records, got %d", len(content))
			}

			wide, err := st.Query(ctx, Query{Days: 30, Now: now})
			if err != nil || len(wide) != 4 {
				t.Fatalf("30-day window: %d %v", len(wide), err)
			}
		})
	}
}

func TestCountByDay(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, r := range []task.ExecutionRecord{
				rec(task.ContentCreation, "ebook", true, now),
				rec(task.ContentCreation, "ebook", false, now),
				rec(task.ContentCreation, "shorts", true, now),
				rec(task.ContentCreation, "ebook", true, now.AddDate(0, 0, -1)),
			} {
				if err := st.Append(ctx, r); err != nil {
					t.Fatal(err)
				}
			}
			day := now.Format(task.DayLayout)
			n, err := st.Count(ctx, day, Filter{Category: task.ContentCreation, Type: "ebook", SuccessOnly: true})
			if err != nil || n != 1 {
				t.Fatalf("ebook successes today = %d, %v", n, err)
			}
			n, err = st.Count(ctx, day, Filter{Category: task.ContentCreation, SuccessOnly: true})
			if err != nil || n != 2 {
				t.Fatalf("content successes today = %d, %v", n, err)
			}
			n, err = st.Count(ctx, "1999-01-01", Filter{})
			if err != nil || n != 0 {
				t.Fatalf("empty day = %d, %v", n, err)
			}
		})
	}
}

func TestArchiveMovesOldPartitions(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := rec(task.Maintenance, "report", true, now.AddDate(0, 0, -40))
			recent := rec(task.Maintenance, "report", true, now.AddDate(0, 0, -2))
			for _, r := range []task.ExecutionRecord{old, recent} {
				if err := st.Append(ctx, r); err != nil {
					t.Fatal(err)
				}
			}
			moved, err := st.Archive(ctx, now.AddDate(0, 0, -30))
			if err != nil {
				t.Fatalf("archive: %v", err)
			}
			if moved != 1 {
				t.Fatalf("moved = %d, want 1", moved)
			}
			got, err := st.Query(ctx, Query{Days: 60, Now: now})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].ID != recent.ID {
				t.Fatalf("archived record still visible: %+v", got)
			}
			again, err := st.Archive(ctx, now.AddDate(0, 0, -30))
			if err != nil || again != 0 {
				t.Fatalf("second archive moved %d, %v", again, err)
			}
		})
	}
}

func TestFileArchiveLayoutAndTornLines(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "logs")
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	if err := st.Append(ctx, rec(task.Publishing, "pending", true, now)); err != nil {
		t.Fatal(err)
	}
	part := filepath.Join(dir, "2026-10-18.jsonl")
	f, err := os.OpenFile(part, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"id":"torn","times`)
	_ = f.Close()

	got, err := st.Query(ctx, Query{Days: 1, Now: now})
	if err != nil || len(got) != 1 {
		t.Fatalf("torn line should be skipped: %d %v", len(got), err)
	}

	if _, err := st.Archive(ctx, now.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", "2026-10-18.jsonl")); err != nil {
		t.Fatalf("partition not moved to archive: %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if err := st.Append(ctx, rec(task.ContentCreation, "shorts", true, now.Add(time.Duration(i)*time.Second))); err != nil {
						t.Errorf("append %d: %v", i, err)
					}
				}(i)
			}
			wg.Wait()
			n, err := st.Count(ctx, now.Format(task.DayLayout), Filter{})
			if err != nil || n != 20 {
				t.Fatalf("count = %d, %v", n, err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	if err := WriteJSONAtomic(path, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSONAtomic(path, map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{\n  \"a\": 2\n}\n" {
		t.Fatalf("unexpected content %q", b)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSQLiteDurabilityPragmas(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "history.db"), BusyTimeout: 3 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	db := st.(*sqliteStore).db

	var syncMode, busy int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&syncMode); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if syncMode != 2 || busy != 3000 {
		t.Fatalf("synchronous=%d busy_timeout=%d, want 2 (FULL) and 3000", syncMode, busy)
	}
}
