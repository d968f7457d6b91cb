// Package registry owns the persisted task list (tasks.json).
//
// Callers address tasks by (category, index); indices shift after Remove.
// Every mutation is written to disk before it returns, and a failed write
// leaves the in-memory list as it was.
//
// Several processes may share one automation directory (a running daemon and
// CLI invocations). Mutations take an advisory lock on tasks.json.lock and
// apply to the file's current content, so no process overwrites another's
// committed change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"autopilot/internal/storage"
	"autopilot/internal/task"
	"autopilot/internal/task/recurrence"
	logx "autopilot/pkg/logx"

	"github.com/google/uuid"
)

const FileName = "tasks.json"

type Registry struct {
	path     string
	lockPath string
	log      logx.Logger

	mu    sync.RWMutex
	tasks map[task.Category][]task.Task
	// seen is the file as last read or written; nil before the first write.
	seen os.FileInfo

	// write is swapped in tests to simulate disk failures.
	write func(path string, tasks map[task.Category][]task.Task) error
}

// Open loads path, seeding DefaultTasks when the file does not exist.
// Tasks without an id (hand-written or older files) get one on first save.
func Open(path string, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		path:     path,
		lockPath: path + ".lock",
		log:      log.With(logx.String("comp", "registry")),
		write:    writeFile,
	}

	unlock, err := storage.LockFile(context.Background(), r.lockPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tasks, err := readFile(path)
	seeded := false
	if errors.Is(err, os.ErrNotExist) {
		tasks, seeded = DefaultTasks(), true
		for cat := range tasks {
			for i := range tasks[cat] {
				tasks[cat][i].Category = cat
			}
		}
	} else if err != nil {
		return nil, err
	}

	if assignIDs(tasks) || seeded {
		if err := r.write(path, tasks); err != nil {
			return nil, fmt.Errorf("write %s: %w", FileName, err)
		}
	}
	if seeded {
		r.log.Info("default tasks written", logx.String("path", path))
	}
	r.tasks = tasks
	r.seen, _ = os.Stat(path)
	return r, nil
}

func (r *Registry) Path() string { return r.path }

func assignIDs(tasks map[task.Category][]task.Task) bool {
	assigned := false
	for cat := range tasks {
		for i := range tasks[cat] {
			if tasks[cat][i].ID == "" {
				tasks[cat][i].ID = uuid.NewString()
				assigned = true
			}
		}
	}
	return assigned
}

// Reload picks up changes another process committed to tasks.json. It
// reports whether the in-memory list changed. An unreadable file leaves the
// current list in force.
func (r *Registry) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := storage.LockFile(context.Background(), r.lockPath)
	if err != nil {
		return false, err
	}
	defer unlock()
	changed, err := r.syncLocked()
	if changed {
		r.log.Debug("task list reloaded", logx.String("path", r.path))
	}
	return changed, err
}

// syncLocked re-reads tasks.json when it differs from what this process last
// read or wrote. Every write replaces the file by rename, so a new file
// identity means another writer. The caller holds mu and the file lock.
func (r *Registry) syncLocked() (bool, error) {
	fi, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) {
		// Deleted by hand; the next write recreates it from memory.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if r.seen != nil && os.SameFile(r.seen, fi) && r.seen.ModTime().Equal(fi.ModTime()) && r.seen.Size() == fi.Size() {
		return false, nil
	}
	tasks, err := readFile(r.path)
	if err != nil {
		return false, err
	}
	if assignIDs(tasks) {
		if err := r.write(r.path, tasks); err != nil {
			return false, fmt.Errorf("write %s: %w", FileName, err)
		}
		fi, _ = os.Stat(r.path)
	}
	r.tasks = tasks
	r.seen = fi
	return true, nil
}

func validate(t task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Schedule != "" {
		if _, err := recurrence.Parse(t.Schedule); err != nil {
			return &task.ValidationError{Field: "schedule", Reason: err.Error()}
		}
	}
	return nil
}

// Add appends t to category and returns its index.
func (r *Registry) Add(category task.Category, t task.Task) (int, error) {
	t.Category = category
	if err := validate(t); err != nil {
		return 0, err
	}
	t = t.Clone()
	t.ID = uuid.NewString()
	t.LastRunAt = nil

	var idx int
	err := r.mutate(func(tasks map[task.Category][]task.Task) error {
		tasks[category] = append(tasks[category], t)
		idx = len(tasks[category]) - 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// Remove deletes the task at index and returns it.
func (r *Registry) Remove(category task.Category, index int) (task.Task, error) {
	if !category.Valid() {
		return task.Task{}, &task.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	var removed task.Task
	err := r.mutate(func(tasks map[task.Category][]task.Task) error {
		list := tasks[category]
		if index < 0 || index >= len(list) {
			return &task.NotFoundError{Category: category, Index: index}
		}
		removed = list[index]
		tasks[category] = slices.Delete(list, index, index+1)
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return removed.Clone(), nil
}

// Update replaces the definition at index. The internal id and the last-run
// watermark carry over so an edit does not make the task due again.
func (r *Registry) Update(category task.Category, index int, t task.Task) error {
	t.Category = category
	if err := validate(t); err != nil {
		return err
	}
	t = t.Clone()
	return r.mutate(func(tasks map[task.Category][]task.Task) error {
		list := tasks[category]
		if index < 0 || index >= len(list) {
			return &task.NotFoundError{Category: category, Index: index}
		}
		t.ID = list[index].ID
		t.LastRunAt = list[index].LastRunAt
		list[index] = t
		return nil
	})
}

// MarkRun moves the last-run watermark of the task with id. A task removed
// while it was running is ignored.
func (r *Registry) MarkRun(id string, at time.Time) error {
	return r.mutate(func(tasks map[task.Category][]task.Task) error {
		for _, list := range tasks {
			for i := range list {
				if list[i].ID == id {
					when := at
					list[i].LastRunAt = &when
					return nil
				}
			}
		}
		return errNoChange
	})
}

var errNoChange = errors.New("no change")

// mutate applies fn to a copy of the current file content and persists it.
// Errors from fn are returned as is; lock, read and write failures are fatal.
func (r *Registry) mutate(fn func(tasks map[task.Category][]task.Task) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := storage.LockFile(context.Background(), r.lockPath)
	if err != nil {
		return task.Fatal(fmt.Errorf("lock %s: %w", FileName, err))
	}
	defer unlock()
	if _, err := r.syncLocked(); err != nil {
		r.log.Error("task list reload failed", logx.String("path", r.path), logx.Err(err))
		return task.Fatal(fmt.Errorf("read %s: %w", FileName, err))
	}

	candidate := make(map[task.Category][]task.Task, len(r.tasks)+1)
	for k, v := range r.tasks {
		candidate[k] = slices.Clone(v)
	}
	if err := fn(candidate); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := r.write(r.path, candidate); err != nil {
		r.log.Error("task list persist failed", logx.String("path", r.path), logx.Err(err))
		return task.Fatal(fmt.Errorf("persist %s: %w", FileName, err))
	}
	r.tasks = candidate
	r.seen, _ = os.Stat(r.path)
	return nil
}

// List returns copies of the tasks in category, in index order.
func (r *Registry) List(category task.Category) []task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.tasks[category])
}

// Get returns a copy of the task at (category, index).
func (r *Registry) Get(category task.Category, index int) (task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.tasks[category]
	if index < 0 || index >= len(list) {
		return task.Task{}, &task.NotFoundError{Category: category, Index: index}
	}
	return list[index].Clone(), nil
}

// Lookup finds a task by internal id.
func (r *Registry) Lookup(id string) (task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, list := range r.tasks {
		for _, t := range list {
			if t.ID == id {
				return t.Clone(), true
			}
		}
	}
	return task.Task{}, false
}

// All returns every task, categories in task.Categories order.
func (r *Registry) All() []task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []task.Task
	for _, cat := range task.Categories {
		out = append(out, cloneAll(r.tasks[cat])...)
	}
	return out
}

// FindByType returns the tasks of category with the given type.
func (r *Registry) FindByType(category task.Category, typ string) []task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []task.Task
	for _, t := range r.tasks[category] {
		if t.Type == typ {
			out = append(out, t.Clone())
		}
	}
	return out
}

func cloneAll(in []task.Task) []task.Task {
	out := make([]task.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
