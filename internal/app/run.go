package app

import (
	"context"
	"strings"
	"time"

	"autopilot/internal/config"
	"autopilot/internal/eventbus"
	"autopilot/internal/runtime/supervisor"
	logx "autopilot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

const shutdownTimeout = 10 * time.Second

// RunScheduler runs the scheduler loop until ctx ends or a persistence
// failure halts it. With once set it performs a single pass and returns when
// everything it dispatched has finished.
//
// The long-running mode also watches the config files, applies reloads to the
// running components and delivers failure alerts.
func (m *Manager) RunScheduler(ctx context.Context, once bool) error {
	if once {
		err := m.sched.RunOnce(ctx)
		m.logStop(once, err)
		return err
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.notif.Start(sup.Context())
	// A debug listener that cannot bind is logged and left off.
	_ = m.diag.Reconfigure(sup.Context(), mapDebugConfig(m.current().cfg))

	updates := m.cfg.Subscribe(4)
	sup.GoRestart("config.watch", m.cfg.Watch)
	sup.Go0("config.reload", func(ctx context.Context) { m.reloadLoop(ctx, updates) })

	if wd := watchdogInterval(); wd > 0 && m.sched.Interval() >= wd {
		m.log.Warn("tick interval exceeds the systemd watchdog timeout",
			logx.Duration("interval", m.sched.Interval()),
			logx.Duration("watchdog", wd),
		)
	}
	sdNotify(daemon.SdNotifyReady)
	err := m.sched.Run(sup.Context())
	sdNotify(daemon.SdNotifyStopping)

	m.cfg.Unsubscribe(updates)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	m.diag.Stop(stopCtx)
	if nerr := m.notif.Stop(stopCtx); nerr != nil {
		m.log.Warn("notifier stop", logx.Err(nerr))
	}
	if serr := sup.Stop(stopCtx); serr != nil {
		m.log.Warn("background workers stop", logx.Err(serr))
	}
	m.logStop(once, err)
	return err
}

func (m *Manager) logStop(once bool, err error) {
	reason := stopReasonFor(once, err)
	if reason == StopFatal || reason == StopError {
		m.log.Error("scheduler stopped", logx.String("reason", string(reason)), logx.Err(err))
		return
	}
	m.log.Info("scheduler stopped", logx.String("reason", string(reason)))
}

// reloadLoop applies committed config snapshots to the running components.
func (m *Manager) reloadLoop(ctx context.Context, updates <-chan config.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			m.applyReload(snap)
		}
	}
}

func (m *Manager) applyReload(snap config.Snapshot) {
	old := m.current()
	if err := m.refresh(snap); err != nil {
		m.log.Warn("config not applied", logx.Err(err))
		return
	}
	cfg := snap.Config

	changes, fields := config.SummarizeChange(old.cfg, cfg)
	if len(changes) > 0 {
		fields = append(fields, logx.String("changed", strings.Join(changes, ",")), logx.Uint64("version", snap.Version))
		m.log.Info("config applied", fields...)
	}

	if m.logs != nil {
		m.logs.Apply(mapLogConfig(cfg, m.dir))
	}
	m.queue.SetLimit(cfg.MaxConcurrentTasks)
	m.sched.SetInterval(cfg.Tick())
	m.notif.Apply(mapNotifierConfig(cfg))
	_ = m.diag.Reconfigure(context.Background(), mapDebugConfig(cfg))

	if next, err := mapStorageConfig(cfg, m.dir); err != nil || next != m.storageCfg {
		m.log.Warn("storage settings change takes effect after restart",
			logx.String("driver", m.storageCfg.Driver),
			logx.String("path", m.storageCfg.Path),
		)
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: snap.Version})
}
