// Package maintenance implements the housekeeping tasks of category
// "maintenance": log archival, execution reports and the pending-content check.
// They are ordinary executors, scheduled and recorded like any other task.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"autopilot/internal/executor"
	"autopilot/internal/storage"
	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

// DefaultRetentionDays applies when no retention source is configured.
const DefaultRetentionDays = 30

// TaskBook is the slice of the task registry pending_check needs.
type TaskBook interface {
	FindByType(category task.Category, typ string) []task.Task
	Add(category task.Category, t task.Task) (int, error)
}

type Deps struct {
	History      storage.Store
	Tasks        TaskBook
	Collaborator executor.Collaborator
	// Retention returns the configured retention in days.
	Retention  func() int
	ReportsDir string
	Now        func() time.Time
	Log        logx.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) retention() int {
	if d.Retention != nil {
		if n := d.Retention(); n > 0 {
			return n
		}
	}
	return DefaultRetentionDays
}

// Register binds archive_logs, report and pending_check.
func Register(reg *executor.Registry, d Deps) {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	d.Log = d.Log.With(logx.String("comp", "maintenance"))
	reg.Register(executor.Key{Category: task.Maintenance, Type: "archive_logs"}, executor.Func(d.archiveLogs))
	reg.Register(executor.Key{Category: task.Maintenance, Type: "report"}, executor.Func(d.report))
	reg.Register(executor.Key{Category: task.Maintenance, Type: "pending_check"}, executor.Func(d.pendingCheck))
}

// archiveLogs moves history partitions older than the retention window to cold storage.
// A retention_days parameter overrides the configured value for that task.
func (d Deps) archiveLogs(ctx context.Context, t task.Task) (map[string]any, error) {
	days := t.Parameters.Int("retention_days", d.retention())
	if days <= 0 {
		days = d.retention()
	}
	cutoff := d.now().AddDate(0, 0, -days)
	moved, err := d.History.Archive(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return map[string]any{"archived": moved}, err
		}
		return map[string]any{"archived": moved}, task.Fatal(fmt.Errorf("archive history: %w", err))
	}
	d.Log.Info("history archived", logx.Int("moved", moved), logx.String("before", cutoff.Format(task.DayLayout)))
	return map[string]any{
		"archived":       moved,
		"before":         cutoff.Format(task.DayLayout),
		"retention_days": days,
	}, nil
}

// pendingCheck asks the collaborator for unpublished content and registers a
// daily publishing/pending task when there is some and none exists yet.
func (d Deps) pendingCheck(ctx context.Context, _ task.Task) (map[string]any, error) {
	out, err := d.Collaborator.Invoke(ctx, executor.Request{Category: task.ContentCreation, Action: executor.ActionPendingContent})
	if err != nil {
		return nil, err
	}
	pending := countPending(out)
	res := map[string]any{"pending": pending, "task_added": false}
	if pending == 0 || len(d.Tasks.FindByType(task.Publishing, "pending")) > 0 {
		return res, nil
	}
	idx, err := d.Tasks.Add(task.Publishing, task.Task{Type: "pending", Schedule: "daily", Enabled: true})
	if err != nil {
		return res, err
	}
	d.Log.Info("pending publishing task registered", logx.Int("pending", pending), logx.Int("index", idx))
	res["task_added"] = true
	res["index"] = idx
	return res, nil
}

func countPending(out map[string]any) int {
	switch v := out["items"].(type) {
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	}
	return task.Params(out).Int("count", 0)
}
