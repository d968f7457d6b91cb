package storage

import (
	"context"
	"errors"
	"time"

	"autopilot/internal/task"
)

var ErrClosed = errors.New("history store closed")

// Config configures the history store.
//
// Driver values:
//   - "file" (default): Path is the log directory
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Query selects records whose day is within Days of today (today included).
type Query struct {
	Days        int
	Category    task.Category // empty means all
	SuccessOnly bool
	Now         time.Time // zero means time.Now(); its location picks day boundaries
}

// Filter narrows Count.
type Filter struct {
	Category    task.Category
	Type        string
	SuccessOnly bool
}

func (f Filter) match(rec task.ExecutionRecord) bool {
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.SuccessOnly && !rec.Success {
		return false
	}
	return true
}

// DefaultQueryDays applies when Query.Days is not positive.
const DefaultQueryDays = 7

// Store is the execution history API used by the scheduler, executors and maintenance.
//
// Append is synchronous and durable once it returns nil; callers treat an
// error as fatal. Query returns records newest first.
type Store interface {
	Append(ctx context.Context, rec task.ExecutionRecord) error
	Query(ctx context.Context, q Query) ([]task.ExecutionRecord, error)
	Count(ctx context.Context, day string, f Filter) (int, error)
	// Archive moves every partition strictly older than before's day out of
	// the hot set and returns how many records (sqlite) or partitions (file) moved.
	Archive(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// dayRange lists partition keys from today back q.Days days, newest first.
func dayRange(q Query) []string {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := q.Days
	if days <= 0 {
		days = DefaultQueryDays
	}
	out := make([]string, 0, days+1)
	for i := 0; i <= days; i++ {
		out = append(out, now.AddDate(0, 0, -i).Format(task.DayLayout))
	}
	return out
}
