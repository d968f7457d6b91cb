// Package app wires the automation manager: configuration, history storage,
// the task registry, executors, the scheduler loop and failure alerts.
//
// The Manager is the control surface shared by the CLI and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"autopilot/internal/config"
	"autopilot/internal/eventbus"
	"autopilot/internal/executor"
	"autopilot/internal/notifier"
	"autopilot/internal/observability/debug"
	"autopilot/internal/storage"
	"autopilot/internal/task"
	"autopilot/internal/task/engine"
	"autopilot/internal/task/maintenance"
	"autopilot/internal/task/recurrence"
	"autopilot/internal/task/registry"
	"autopilot/internal/task/scheduler"
	logx "autopilot/pkg/logx"
)

// DefaultDir is the automation directory used when none is given.
const DefaultDir = ".mp/automation"

type Manager struct {
	dir string
	log logx.Logger

	logs    *logx.Service // nil when the logger was injected
	cfg     *config.Store
	view    atomic.Pointer[view]
	history storage.Store
	tasks   *registry.Registry
	queue   *engine.Queue
	bus     eventbus.Bus
	sched   *scheduler.Service
	notif   *notifier.Service
	diag    *debug.Service
	now     func() time.Time

	storageCfg storage.Config
	closeOnce  sync.Once
}

// view is the committed configuration as the running components read it.
type view struct {
	cfg       *config.Config
	schedules config.ScheduleMap
	loc       *time.Location
	version   uint64
}

type Option func(*options)

type options struct {
	log    logx.Logger
	collab executor.Collaborator
	now    func() time.Time
}

// WithLogger replaces the configured logging sinks.
func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithCollaborator overrides the collaborator chosen from configuration.
func WithCollaborator(c executor.Collaborator) Option {
	return func(o *options) { o.collab = c }
}

// WithClock sets the wall clock. The configured timezone is applied on top.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Open loads or initializes the automation directory and wires every component.
func Open(dir string, opts ...Option) (*Manager, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	bootLog := o.log
	if bootLog.IsZero() {
		bootLog = logx.NewConsole("info")
	}
	store, err := config.Open(dir, bootLog)
	if err != nil {
		return nil, err
	}
	snap := store.Snapshot()

	m := &Manager{dir: dir, cfg: store, bus: eventbus.New(), now: o.now}
	if m.now == nil {
		m.now = time.Now
	}
	if o.log.IsZero() {
		m.logs, m.log = logx.New(mapLogConfig(snap.Config, dir))
	} else {
		m.log = o.log
	}
	if err := m.refresh(snap); err != nil {
		m.closeLogs()
		return nil, err
	}

	m.storageCfg, err = mapStorageConfig(snap.Config, dir)
	if err != nil {
		m.closeLogs()
		return nil, err
	}
	m.history, err = storage.Open(m.storageCfg, m.log)
	if err != nil {
		m.closeLogs()
		return nil, err
	}
	m.tasks, err = registry.Open(filepath.Join(dir, registry.FileName), m.log)
	if err != nil {
		_ = m.history.Close()
		m.closeLogs()
		return nil, err
	}
	m.queue = engine.New(snap.Config.MaxConcurrentTasks)

	collab := o.collab
	if collab == nil {
		collab, err = buildCollaborator(snap.Config, m.log)
		if err != nil {
			_ = m.history.Close()
			m.closeLogs()
			return nil, err
		}
	}

	reg := executor.NewRegistry()
	executor.RegisterBuiltins(reg, executor.Env{
		Collaborator: collab,
		History:      m.history,
		Limits: func() executor.Limits {
			c := m.current().cfg
			return executor.Limits{MaxDailyContent: c.MaxDailyContent, MaxDailyEbooks: c.MaxDailyEbooks}
		},
		Now: m.clock,
		Log: m.log,
	})
	maintenance.Register(reg, maintenance.Deps{
		History:      m.history,
		Tasks:        m.tasks,
		Collaborator: collab,
		Retention:    func() int { return m.current().cfg.RetentionDays },
		ReportsDir:   filepath.Join(dir, ReportsDir),
		Now:          m.clock,
		Log:          m.log,
	})
	dispatcher := executor.NewDispatcher(reg,
		executor.WithTimeouts(func(cat task.Category) time.Duration { return m.current().cfg.TimeoutFor(cat) }),
		executor.WithClock(m.clock),
		executor.WithLogger(m.log),
	)

	m.sched = scheduler.New(scheduler.Options{
		Tasks:    m.tasks,
		Queue:    m.queue,
		Runner:   dispatcher,
		History:  m.history,
		Bus:      m.bus,
		Settings: m.settings,
		Locks:    engine.NewDirLocks(filepath.Join(dir, LocksDir)),
		Interval: snap.Config.Tick(),
		Watchdog: watchdogPing,
		Now:      m.clock,
		Log:      m.log,
	})
	m.notif = notifier.New(mapNotifierConfig(snap.Config), m.bus, m.log, buildSenders(snap.Config, m.log)...)
	m.diag = debug.New(func() (any, bool) { return m.Status(), m.sched.Err() == nil }, m.log)

	m.log.Debug("automation manager opened",
		logx.String("dir", dir),
		logx.String("storage", m.storageCfg.Driver),
		logx.Int("tasks", len(m.tasks.All())),
	)
	return m, nil
}

// refresh installs a committed config snapshot. An unloadable timezone keeps
// the previous location.
func (m *Manager) refresh(snap config.Snapshot) error {
	loc, err := snap.Config.Location()
	if err != nil {
		prev := m.view.Load()
		if prev == nil {
			return err
		}
		m.log.Warn("timezone not applied", logx.Err(err))
		loc = prev.loc
	}
	m.view.Store(&view{cfg: snap.Config, schedules: snap.Schedules, loc: loc, version: snap.Version})
	return nil
}

func (m *Manager) current() *view { return m.view.Load() }

// clock returns the wall clock in the configured timezone.
func (m *Manager) clock() time.Time { return m.now().In(m.current().loc) }

func (m *Manager) settings() scheduler.Settings {
	v := m.current()
	return scheduler.Settings{Enabled: v.cfg.Enabled, Location: v.loc, Schedules: v.schedules}
}

func (m *Manager) Dir() string            { return m.dir }
func (m *Manager) Logger() logx.Logger    { return m.log }
func (m *Manager) Bus() eventbus.Bus      { return m.bus }
func (m *Manager) Config() *config.Config { return m.current().cfg.Clone() }

// AddTask appends a task to category and returns its index.
func (m *Manager) AddTask(category task.Category, t task.Task) (int, error) {
	idx, err := m.tasks.Add(category, t)
	if err != nil {
		return 0, err
	}
	m.log.Info("task added", logx.String("category", string(category)), logx.String("type", t.Type), logx.Int("index", idx))
	return idx, nil
}

// RemoveTask deletes the task at (category, index). Later indices shift down.
func (m *Manager) RemoveTask(category task.Category, index int) (task.Task, error) {
	removed, err := m.tasks.Remove(category, index)
	if err != nil {
		return task.Task{}, err
	}
	m.log.Info("task removed", logx.String("category", string(category)), logx.String("type", removed.Type), logx.Int("index", index))
	return removed, nil
}

// UpdateTask replaces the definition at (category, index), keeping its identity
// and last-run watermark.
func (m *Manager) UpdateTask(category task.Category, index int, t task.Task) error {
	if err := m.tasks.Update(category, index, t); err != nil {
		return err
	}
	m.log.Info("task updated", logx.String("category", string(category)), logx.String("type", t.Type), logx.Int("index", index))
	return nil
}

// GetTask returns the task at (category, index).
func (m *Manager) GetTask(category task.Category, index int) (task.Task, error) {
	return m.tasks.Get(category, index)
}

// ListTasks returns the tasks of category in index order, or every task when
// category is empty.
func (m *Manager) ListTasks(category task.Category) ([]task.Task, error) {
	if category == "" {
		return m.tasks.All(), nil
	}
	if !category.Valid() {
		return nil, &task.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	return m.tasks.List(category), nil
}

// ExecuteTaskNow runs (category, type) immediately, outside the schedule.
func (m *Manager) ExecuteTaskNow(ctx context.Context, category task.Category, typ string, params task.Params) (task.ExecutionRecord, error) {
	return m.sched.ExecuteNow(ctx, category, typ, params)
}

// TaskHistory returns the records of the last days days (today included),
// newest first.
func (m *Manager) TaskHistory(ctx context.Context, days int, category task.Category, successOnly bool) ([]task.ExecutionRecord, error) {
	if category != "" && !category.Valid() {
		return nil, &task.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	return m.history.Query(ctx, storage.Query{Days: days, Category: category, SuccessOnly: successOnly, Now: m.clock()})
}

// SetSchedule registers descriptor for (category, type) in schedules.json.
// An empty descriptor removes the entry.
func (m *Manager) SetSchedule(category task.Category, typ, descriptor string) error {
	if !category.Valid() {
		return &task.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	if descriptor != "" {
		if _, err := recurrence.Parse(descriptor); err != nil {
			return &task.ValidationError{Field: "schedule", Reason: err.Error()}
		}
	}
	err := m.cfg.UpdateSchedules(func(sm config.ScheduleMap) error {
		if descriptor == "" {
			delete(sm[string(category)], typ)
			return nil
		}
		if sm[string(category)] == nil {
			sm[string(category)] = map[string]string{}
		}
		sm[string(category)][typ] = descriptor
		return nil
	})
	if err != nil {
		return err
	}
	return m.refresh(m.cfg.Snapshot())
}

// Schedules returns the current schedules.json content.
func (m *Manager) Schedules() config.ScheduleMap { return m.current().schedules.Clone() }

// Status is a point-in-time view of the manager.
type Status struct {
	Dir           string                 `json:"dir"`
	ConfigVersion uint64                 `json:"config_version"`
	Storage       string                 `json:"storage"`
	Tasks         map[task.Category]int  `json:"tasks"`
	Scheduler     scheduler.Snapshot     `json:"scheduler"`
	Alerts        bool                   `json:"alerts"`
	Notifications []notifier.HistoryItem `json:"notifications,omitempty"`
	BusDropped    uint64                 `json:"bus_dropped"`
}

func (m *Manager) Status() Status {
	st := Status{
		Dir:           m.dir,
		ConfigVersion: m.current().version,
		Storage:       m.storageCfg.Driver,
		Tasks:         map[task.Category]int{},
		Scheduler:     m.sched.Snapshot(),
		Alerts:        m.notif.Enabled(),
		Notifications: m.notif.History(),
		BusDropped:    eventbus.Dropped(m.bus),
	}
	for _, t := range m.tasks.All() {
		st.Tasks[t.Category]++
	}
	return st
}

// Close releases the history store and log sinks. It is idempotent.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(m.notif.Stop(ctx), m.history.Close())
		m.closeLogs()
	})
	return err
}

func (m *Manager) closeLogs() {
	if m.logs != nil {
		_ = m.logs.Close()
	}
}
