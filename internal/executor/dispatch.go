package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

// DefaultTimeout applies when the dispatcher has no timeout function.
const DefaultTimeout = 10 * time.Minute

// Dispatcher runs a task through its registered executor. Execute never
// returns an error: every outcome, including a missing executor, a panic and
// a deadline, is a record.
type Dispatcher struct {
	reg     *Registry
	timeout func(task.Category) time.Duration
	now     func() time.Time
	log     logx.Logger
}

type Option func(*Dispatcher)

// WithTimeouts sets the per-category deadline source (read on every call).
func WithTimeouts(fn func(task.Category) time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = fn }
}

// WithClock sets the record timestamp source (scheduler timezone).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(log logx.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func NewDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, now: time.Now, log: logx.Nop()}
	for _, o := range opts {
		o(d)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.String("comp", "dispatch"))
	return d
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

func (d *Dispatcher) timeoutFor(c task.Category) time.Duration {
	if d.timeout != nil {
		if t := d.timeout(c); t > 0 {
			return t
		}
	}
	return DefaultTimeout
}

type outcome struct {
	result map[string]any
	err    error
	panic  any
	stack  string
}

// Execute runs t and returns its record.
func (d *Dispatcher) Execute(ctx context.Context, t task.Task, trigger task.Trigger) (rec task.ExecutionRecord) {
	rec = task.NewRecord(t, trigger, d.now())
	began := time.Now()
	defer func() { rec.Duration = time.Since(began) }()

	ex, ok := d.reg.Resolve(Key{Category: t.Category, Type: t.Type})
	if !ok {
		rec.Reason = task.ReasonUnknownType
		rec.Error = (&task.ConfigurationError{Category: t.Category, Type: t.Type}).Error()
		d.log.Warn("no executor registered", logx.String("task", t.String()))
		return rec
	}

	limit := d.timeoutFor(t.Category)
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// Buffered so an abandoned executor can still finish and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panic: r, stack: string(debug.Stack())}
			}
		}()
		res, err := ex.Execute(runCtx, t.Clone())
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		d.fill(&rec, o)
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			rec.Reason = task.ReasonTimeout
			rec.Error = fmt.Sprintf("%v after %s", task.ErrTimeout, limit)
		} else {
			rec.Reason = task.ReasonError
			rec.Error = runCtx.Err().Error()
		}
		d.log.Warn("executor abandoned", logx.String("task", t.String()), logx.String("reason", rec.Reason), logx.Duration("timeout", limit))
	}
	return rec
}

func (d *Dispatcher) fill(rec *task.ExecutionRecord, o outcome) {
	switch {
	case o.panic != nil:
		rec.Reason = task.ReasonPanic
		rec.Error = fmt.Sprintf("panic: %v", o.panic)
		d.log.Error("executor panicked", logx.String("task", string(rec.Category)+"/"+rec.Type), logx.Any("panic", o.panic), logx.String("stack", o.stack))
	case o.err != nil:
		rec.Error = o.err.Error()
		switch {
		case task.IsFatal(o.err):
			rec.Reason = task.ReasonFatal
		case task.IsTransient(o.err):
			rec.Reason = task.ReasonTransient
		case errors.Is(o.err, context.DeadlineExceeded):
			rec.Reason = task.ReasonTimeout
		default:
			rec.Reason = task.ReasonError
		}
		rec.Result = o.result
	default:
		rec.Success = true
		rec.Result = o.result
	}
}
