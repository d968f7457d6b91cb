package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"autopilot/internal/eventbus"
	"autopilot/internal/runtime/supervisor"
	"autopilot/internal/task"
	"autopilot/internal/task/engine"
	logx "autopilot/pkg/logx"

	"github.com/robfig/cron/v3"
)

var ErrRunning = errors.New("scheduler already running")

// heldRetry is how often RunOnce retries items another process is running.
const heldRetry = 250 * time.Millisecond

type Service struct {
	log      logx.Logger
	tasks    Tasks
	queue    *engine.Queue
	runner   Runner
	history  Appender
	bus      eventbus.Bus
	settings func() Settings
	locks    RunLocks
	now      func() time.Time
	watchdog func()

	drainTimeout time.Duration

	workers *supervisor.Supervisor
	state   atomic.Int32
	ticks   atomic.Uint64
	lastTk  atomic.Value // time.Time

	mu       sync.Mutex
	c        *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	running  bool

	// progress is signalled after every completed execution.
	progress chan struct{}

	fatalOnce sync.Once
	fatalErr  error
	fatalCh   chan struct{}

	warns warnThrottler
}

func New(o Options) *Service {
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = time.Minute
	}
	if o.Settings == nil {
		o.Settings = func() Settings { return Settings{Enabled: true, Location: time.Local} }
	}
	if o.Bus == nil {
		o.Bus = eventbus.New()
	}
	if o.Locks == nil {
		o.Locks = noLocks{}
	}
	log := o.Log.With(logx.String("comp", "scheduler"))
	return &Service{
		log:          log,
		tasks:        o.Tasks,
		queue:        o.Queue,
		runner:       o.Runner,
		history:      o.History,
		bus:          o.Bus,
		settings:     o.Settings,
		locks:        o.Locks,
		now:          o.Now,
		watchdog:     o.Watchdog,
		drainTimeout: o.DrainTimeout,
		workers:      supervisor.New(context.Background(), supervisor.WithLogger(log)),
		interval:     o.Interval,
		progress:     make(chan struct{}, 1),
		fatalCh:      make(chan struct{}),
	}
}

func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerState, Data: st.String()})
	}
}

// Err returns the persistence failure that halted the loop, if any.
func (s *Service) Err() error {
	select {
	case <-s.fatalCh:
		return s.fatalErr
	default:
		return nil
	}
}

func (s *Service) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.fatalErr = task.Fatal(err)
		s.log.Error("persistence failed, halting scheduler", logx.Err(err))
		close(s.fatalCh)
	})
}

// Run ticks immediately and then every interval until ctx ends or a
// persistence failure occurs. In-flight executions are waited for, up to the
// drain timeout, before it returns.
func (s *Service) Run(ctx context.Context) error {
	loc := s.settings().Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log}), cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.c = c
	s.entry = c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tickJob))
	interval := s.interval
	s.mu.Unlock()

	s.log.Info("scheduler started", logx.Duration("interval", interval), logx.String("tz", loc.String()))
	c.Start()
	s.tickJob()

	select {
	case <-ctx.Done():
	case <-s.fatalCh:
	}

	<-c.Stop().Done()
	s.mu.Lock()
	s.c = nil
	s.running = false
	s.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.workers.Wait(waitCtx); errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("in-flight executions still running at shutdown", logx.Int("in_flight", s.queue.InFlight()))
	}
	s.log.Info("scheduler stopped", logx.Uint64("ticks", s.ticks.Load()))
	return s.Err()
}

// RunOnce performs a single tick and waits until the queue is empty and
// nothing is in flight.
func (s *Service) RunOnce(ctx context.Context) error {
	s.Tick(s.now())
	for {
		if err := s.Err(); err != nil {
			return err
		}
		if s.queue.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.fatalCh:
			return s.Err()
		case <-s.progress:
			s.drain()
		case <-time.After(heldRetry):
			// Items held by a run in another process.
			s.drain()
		}
	}
}

// SetInterval reschedules the tick. A running tick is not interrupted.
func (s *Service) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == s.interval {
		return
	}
	s.interval = d
	if s.c != nil {
		s.c.Remove(s.entry)
		s.entry = s.c.Schedule(cron.Every(d), cron.FuncJob(s.tickJob))
	}
	s.log.Info("tick interval changed", logx.Duration("interval", d))
}

func (s *Service) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Service) Snapshot() Snapshot {
	st := s.settings()
	tz := "Local"
	if st.Location != nil {
		tz = st.Location.String()
	}
	snap := Snapshot{
		State:    s.State(),
		Enabled:  st.Enabled,
		Timezone: tz,
		Ticks:    s.ticks.Load(),
		Queue:    s.queue.Snapshot(),
		Workers:  s.workers.Counters(),
	}
	if t, ok := s.lastTk.Load().(time.Time); ok {
		snap.LastTick = t
	}
	s.mu.Lock()
	snap.Interval = s.interval
	if s.c != nil {
		snap.NextTick = s.c.Entry(s.entry).Next
	}
	s.mu.Unlock()
	if err := s.Err(); err != nil {
		snap.Fatal = err.Error()
	}
	return snap
}

func (s *Service) tickJob() {
	if s.Err() != nil {
		return
	}
	s.Tick(s.now())
}
