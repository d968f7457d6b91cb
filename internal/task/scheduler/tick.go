package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopilot/internal/eventbus"
	"autopilot/internal/task"
	"autopilot/internal/task/engine"
	"autopilot/internal/task/recurrence"
	logx "autopilot/pkg/logx"
)

// Tick enqueues every enabled task that is due at now and drains the queue.
// It returns how many tasks were admitted.
func (s *Service) Tick(now time.Time) int {
	st := s.settings()
	loc := st.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	s.ticks.Add(1)
	s.lastTk.Store(now)
	defer func() {
		if s.watchdog != nil {
			s.watchdog()
		}
	}()

	if !st.Enabled {
		s.log.Debug("tick skipped, automation disabled")
		return 0
	}

	if _, err := s.tasks.Reload(); err != nil {
		s.warns.warn(s.log, "tasks.reload", "task list not reloaded, keeping the loaded one", logx.Err(err))
	}

	s.setState(Ticking)
	admitted := 0
	for _, t := range s.tasks.All() {
		if !t.Enabled {
			continue
		}
		due, err := s.isDue(t, st, now)
		if err != nil {
			s.warns.warn(s.log, t.ID, "task has an invalid schedule", logx.String("task", t.String()), logx.String("id", t.ID), logx.Err(err))
			continue
		}
		if !due {
			continue
		}
		err = s.queue.Enqueue(engine.Item{Task: t, Trigger: task.TriggerScheduled, EnqueuedAt: now})
		switch {
		case errors.Is(err, engine.ErrDuplicate):
			s.log.Debug("task still queued or running", logx.String("task", t.String()), logx.String("id", t.ID))
		case err != nil:
			s.log.Warn("enqueue failed", logx.String("task", t.String()), logx.Err(err))
		default:
			admitted++
		}
	}
	if admitted > 0 {
		s.log.Debug("tick admitted tasks", logx.Int("admitted", admitted), logx.Int("queued", s.queue.Len()))
	}
	s.drain()
	return admitted
}

func (s *Service) isDue(t task.Task, st Settings, now time.Time) (bool, error) {
	rule, err := recurrence.Resolve(t.Schedule, st.Schedules.Lookup(string(t.Category), t.Type))
	if err != nil {
		return false, err
	}
	return recurrence.IsDue(rule, now, t.LastRunAt), nil
}

// drain hands queued items to workers until the queue is empty or the
// in-flight bound blocks further progress.
func (s *Service) drain() {
	if s.Err() != nil {
		return
	}
	for {
		var release func()
		it, ok, dropped := s.queue.DispatchNext(func(it engine.Item) (engine.Item, engine.Verdict) {
			next, verdict, rel := s.admit(it)
			release = rel
			return next, verdict
		})
		for _, d := range dropped {
			s.skip(d.Task, "removed, disabled or no longer due")
		}
		if !ok {
			break
		}
		unlock := release
		s.workers.Go0("task:"+it.Key(), func(ctx context.Context) { s.run(ctx, it, unlock) })
	}
	if s.queue.Idle() {
		s.setState(Idle)
	} else {
		s.setState(Draining)
	}
}

// admit decides, with the task's gate held, whether a queued item still runs.
// A task running in another process stays queued; one that was removed,
// disabled or already run since admission is dropped without a record.
func (s *Service) admit(it engine.Item) (engine.Item, engine.Verdict, func()) {
	if it.Task.ID == "" {
		return it, engine.Run, nil
	}
	fresh, ok := s.runnable(it.Task.ID)
	if !ok {
		return it, engine.Drop, nil
	}
	release, ok, err := s.locks.TryLock(it.Key())
	if err != nil {
		s.warns.warn(s.log, "lock:"+it.Key(), "run lock unavailable", logx.String("task", it.Task.String()), logx.Err(err))
		return it, engine.Hold, nil
	}
	if !ok {
		s.log.Debug("task running in another process", logx.String("task", it.Task.String()), logx.String("id", it.Task.ID))
		return it, engine.Hold, nil
	}
	// The other process may have just finished it.
	if changed, _ := s.tasks.Reload(); changed {
		if fresh, ok = s.runnable(it.Task.ID); !ok {
			release()
			return it, engine.Drop, nil
		}
	}
	it.Task = fresh
	return it, engine.Run, release
}

func (s *Service) runnable(id string) (task.Task, bool) {
	fresh, ok := s.tasks.Lookup(id)
	if !ok || !fresh.Enabled {
		return task.Task{}, false
	}
	st := s.settings()
	loc := st.Location
	if loc == nil {
		loc = time.Local
	}
	due, err := s.isDue(fresh, st, s.now().In(loc))
	if err != nil || !due {
		return task.Task{}, false
	}
	return fresh, true
}

// run executes one dispatched item. The gate and the run lock are held until
// the record is appended and the watermark moved.
func (s *Service) run(ctx context.Context, it engine.Item, unlock func()) {
	defer s.complete(it, unlock)

	t := it.Task
	// Shutdown must not cut an execution short; only its timeout does.
	execCtx := context.WithoutCancel(ctx)
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Data: t.Clone()})
	rec := s.runner.Execute(execCtx, t, it.Trigger)
	s.persist(execCtx, []string{t.ID}, rec)
}

// persist appends rec, moves the watermark of ids and publishes the outcome.
func (s *Service) persist(ctx context.Context, ids []string, rec task.ExecutionRecord) error {
	if err := s.history.Append(ctx, rec); err != nil {
		err = task.Fatal(err)
		s.fatal(err)
		return err
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := s.tasks.MarkRun(id, rec.Timestamp); err != nil {
			err = task.Fatal(err)
			s.fatal(err)
			return err
		}
	}

	fields := []logx.Field{
		logx.String("task", string(rec.Category)+"/"+rec.Type),
		logx.String("trigger", string(rec.Trigger)),
		logx.Duration("took", rec.Duration),
	}
	if rec.Success {
		s.log.Info("task succeeded", fields...)
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFinished, Data: rec})
	} else {
		s.log.Warn("task failed", append(fields, logx.String("reason", rec.Reason), logx.String("error", rec.Error))...)
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Data: rec})
	}
	if rec.Reason == task.ReasonFatal {
		// The executor's own registry or history write failed.
		err := task.Fatal(fmt.Errorf("%s/%s: %s", rec.Category, rec.Type, strings.TrimPrefix(rec.Error, "fatal: ")))
		s.fatal(err)
		return err
	}
	return nil
}

func (s *Service) skip(t task.Task, why string) {
	s.log.Debug("dispatch skipped", logx.String("task", t.String()), logx.String("id", t.ID), logx.String("why", why))
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskSkipped, Data: t.Clone()})
}

func (s *Service) complete(it engine.Item, unlock func()) {
	if unlock != nil {
		unlock()
	}
	s.queue.Done(it)
	s.drain()
	s.signal()
}

func (s *Service) signal() {
	select {
	case s.progress <- struct{}{}:
	default:
	}
}
