package scheduler

import (
	"context"
	"fmt"

	"autopilot/internal/eventbus"
	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

// ExecuteNow runs (category, type) immediately with params, outside the
// schedule and the concurrency bound. It waits for any in-flight run of a
// matching registered task, in this process or another one sharing the
// directory, never preempting it. Then it records exactly one execution and
// moves the watermark of every matching task.
//
// The returned error is non-nil only for an invalid category, a canceled
// wait or a persistence failure; executor failures are in the record.
func (s *Service) ExecuteNow(ctx context.Context, category task.Category, typ string, params task.Params) (task.ExecutionRecord, error) {
	t := task.Task{Category: category, Type: typ, Parameters: params.Clone(), Enabled: true}
	if err := t.Validate(); err != nil {
		return task.ExecutionRecord{}, err
	}
	if err := s.Err(); err != nil {
		return task.ExecutionRecord{}, err
	}

	if _, err := s.tasks.Reload(); err != nil {
		s.log.Warn("task list not reloaded, keeping the loaded one", logx.Err(err))
	}
	matches := s.tasks.FindByType(category, typ)
	ids := make([]string, 0, len(matches))
	keys := make([]string, 0, len(matches)+1)
	for _, m := range matches {
		ids = append(ids, m.ID)
		keys = append(keys, m.Key())
	}
	if len(matches) == 1 {
		t.ID = matches[0].ID
	} else {
		keys = append(keys, t.Key())
	}

	release, err := s.queue.Acquire(ctx, keys...)
	if err != nil {
		return task.ExecutionRecord{}, fmt.Errorf("wait for in-flight run of %s: %w", t, err)
	}
	unlock, err := s.locks.Lock(ctx, keys...)
	if err != nil {
		release()
		return task.ExecutionRecord{}, fmt.Errorf("wait for run of %s in another process: %w", t, err)
	}
	defer func() {
		unlock()
		release()
		s.drain()
		s.signal()
	}()

	s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Data: t.Clone()})
	rec := s.runner.Execute(ctx, t, task.TriggerManual)
	if err := s.persist(context.WithoutCancel(ctx), ids, rec); err != nil {
		return rec, err
	}
	return rec, nil
}
