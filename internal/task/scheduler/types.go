package scheduler

import (
	"context"
	"time"

	"autopilot/internal/config"
	"autopilot/internal/eventbus"
	"autopilot/internal/runtime/supervisor"
	"autopilot/internal/task"
	"autopilot/internal/task/engine"
	logx "autopilot/pkg/logx"
)

// State is the loop state reported by Snapshot.
type State int32

const (
	Idle State = iota
	Ticking
	Draining
)

func (s State) String() string {
	switch s {
	case Ticking:
		return "ticking"
	case Draining:
		return "draining"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 60 * time.Second

// Settings is the hot-reloadable input of a tick, read once per tick.
type Settings struct {
	Enabled   bool
	Location  *time.Location
	Schedules config.ScheduleMap
}

// Tasks is the registry surface the loop needs.
type Tasks interface {
	All() []task.Task
	Lookup(id string) (task.Task, bool)
	FindByType(category task.Category, typ string) []task.Task
	MarkRun(id string, at time.Time) error
	// Reload picks up changes committed by other processes.
	Reload() (bool, error)
}

// RunLocks keeps runs of one task from overlapping across processes that
// share the automation directory.
type RunLocks interface {
	TryLock(key string) (release func(), ok bool, err error)
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

type noLocks struct{}

func (noLocks) TryLock(string) (func(), bool, error) { return func() {}, true, nil }
func (noLocks) Lock(context.Context, ...string) (func(), error) { return func() {}, nil }

// Runner executes one task and always yields a record.
type Runner interface {
	Execute(ctx context.Context, t task.Task, trigger task.Trigger) task.ExecutionRecord
}

// Appender persists execution records.
type Appender interface {
	Append(ctx context.Context, rec task.ExecutionRecord) error
}

type Options struct {
	Tasks    Tasks
	Queue    *engine.Queue
	Runner   Runner
	History  Appender
	Bus      eventbus.Bus
	Settings func() Settings
	// Locks is optional; without it runs are serialized in-process only.
	Locks    RunLocks
	Interval time.Duration
	// DrainTimeout bounds how long Run waits for in-flight executions on shutdown.
	DrainTimeout time.Duration
	// Watchdog is called after every tick (systemd keepalive).
	Watchdog func()
	Now      func() time.Time
	Log      logx.Logger
}

// Snapshot is a point-in-time view of the loop for status output.
type Snapshot struct {
	State    State               `json:"state"`
	Enabled  bool                `json:"enabled"`
	Timezone string              `json:"timezone"`
	Interval time.Duration       `json:"interval"`
	LastTick time.Time           `json:"last_tick,omitempty"`
	NextTick time.Time           `json:"next_tick,omitempty"`
	Ticks    uint64              `json:"ticks"`
	Queue    engine.Snapshot     `json:"queue"`
	Workers  supervisor.Counters `json:"workers"`
	Fatal    string              `json:"fatal,omitempty"`
}
