package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"autopilot/internal/config"
	"autopilot/internal/executor"
	"autopilot/internal/notifier"
	"autopilot/internal/observability/debug"
	"autopilot/internal/storage"
	logx "autopilot/pkg/logx"
)

// Directory layout under the automation dir.
const (
	LogsDir    = "logs"
	ReportsDir = "reports"
	LocksDir   = "locks"
	HistoryDB  = "history.db"
)

func resolvePath(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func mapStorageConfig(cfg *config.Config, dir string) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		sc = &config.StorageConfig{Driver: "file"}
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file":
		path := resolvePath(dir, sc.Path)
		if path == "" {
			path = filepath.Join(dir, LogsDir)
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		path := resolvePath(dir, sc.Path)
		if path == "" {
			path = filepath.Join(dir, HistoryDB)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	}
	return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
}

func mapLogConfig(cfg *config.Config, dir string) logx.Config {
	lc := logx.Config{Level: cfg.EffectiveLogLevel(), Console: true}
	if cfg.Logging != nil {
		lc.Console = cfg.Logging.Console
		lc.File = logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    resolvePath(dir, cfg.Logging.File.Path),
		}
		if lc.File.Enabled && lc.File.Path == "" {
			lc.File.Path = filepath.Join(dir, "autopilot.log")
		}
	}
	return lc
}

func mapDebugConfig(cfg *config.Config) debug.Config {
	d := cfg.Debug
	if d == nil {
		return debug.Config{}
	}
	return debug.Config{
		Enabled:              d.Enabled,
		Addr:                 strings.TrimSpace(d.Address),
		BlockProfileRate:     d.BlockProfileRate,
		MutexProfileFraction: d.MutexProfileFraction,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{}
	}
	return notifier.Config{
		Enabled:    nc.Enabled,
		QueueSize:  nc.QueueSize,
		RatePerSec: nc.RatePerSec,
	}
}

// buildSenders returns the alert channels the config fully describes.
// A half-configured channel is reported and skipped.
func buildSenders(cfg *config.Config, log logx.Logger) []notifier.Sender {
	nc := cfg.Notifier
	if nc == nil || !nc.Enabled {
		return nil
	}
	var out []notifier.Sender
	if tg := nc.Telegram; tg != nil {
		s, err := notifier.NewTelegram(tg.Token, tg.ChatID, tg.ThreadID)
		if err != nil {
			log.Warn("telegram alerts disabled", logx.Err(err))
		} else {
			out = append(out, s)
		}
	}
	if sm := nc.SMTP; sm != nil {
		s, err := notifier.NewEmail(sm.Host, sm.Port, sm.Username, sm.Password, sm.From, cfg.NotificationEmail)
		if err != nil {
			log.Warn("email alerts disabled", logx.Err(err))
		} else {
			out = append(out, s)
		}
	}
	return out
}

// buildCollaborator picks the HTTP backend when an endpoint is configured,
// otherwise the dry-run collaborator.
func buildCollaborator(cfg *config.Config, log logx.Logger) (executor.Collaborator, error) {
	cc := cfg.Collaborator
	if cc == nil || strings.TrimSpace(cc.Endpoint) == "" {
		log.Info("no collaborator endpoint configured, running in dry-run mode")
		return executor.NewDryRun(log), nil
	}
	timeout, err := config.ParseDurationOrDefault("collaborator.timeout", cc.Timeout, 2*time.Minute)
	if err != nil {
		return nil, err
	}
	return executor.NewHTTPCollaborator(cc.Endpoint, cc.Token, timeout, log)
}
