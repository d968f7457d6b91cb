package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"autopilot/internal/task"
	"autopilot/internal/task/recurrence"
)

// Defaults (when fields are omitted/zero):
//   - max_daily_content: 5, max_daily_ebooks: 2, max_concurrent_tasks: 3
//   - tick_interval: "60s", default_timeout: "10m", retention_days: 30
//   - log_level: "info", storage.driver: "file"
const (
	DefaultMaxDailyContent    = 5
	DefaultMaxDailyEbooks     = 2
	DefaultMaxConcurrentTasks = 3
	DefaultTickInterval       = 60 * time.Second
	DefaultTimeout            = 10 * time.Minute
	DefaultRetentionDays      = 30
	DefaultNotifierRate       = 1
	DefaultNotifierQueue      = 64
)

// Default returns the configuration written when none exists.
func Default() *Config {
	cfg := &Config{
		Enabled:             true,
		ContentTypes:        []string{"shorts", "blog", "ebook", "social"},
		Platforms:           []string{"youtube", "twitter", "instagram"},
		MonetizationMethods: []string{"affiliate", "digital_product", "ebook_sales"},
		LogLevel:            "info",
		TickInterval:        "60s",
	}
	Normalize(cfg)
	return cfg
}

// DefaultSchedules returns the schedule map written when schedules.json is missing.
func DefaultSchedules() ScheduleMap {
	return ScheduleMap{
		string(task.ContentCreation): {
			"shorts": "daily",
			"blog":   "weekly",
			"ebook":  "monthly",
			"social": "daily",
		},
		string(task.Publishing): {
			"shorts": "daily",
			"blog":   "weekly:wed",
			"ebook":  "monthly",
			"social": "daily",
		},
		string(task.Monetization): {
			"affiliate_content": "weekly:fri",
			"ebook_promotion":   "weekly:fri",
			"bundle_creation":   "monthly",
			"sales_report":      "weekly:fri",
		},
		string(task.Maintenance): {
			"archive_logs":  "daily",
			"pending_check": "daily",
			"report":        "weekly:sun",
		},
	}
}

// Normalize fills zero values with defaults. It never touches explicit values.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.MaxDailyContent <= 0 {
		cfg.MaxDailyContent = DefaultMaxDailyContent
	}
	if cfg.MaxDailyEbooks <= 0 {
		cfg.MaxDailyEbooks = DefaultMaxDailyEbooks
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{Driver: "file"}
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Notifier != nil {
		if cfg.Notifier.RatePerSec <= 0 {
			cfg.Notifier.RatePerSec = DefaultNotifierRate
		}
		if cfg.Notifier.QueueSize <= 0 {
			cfg.Notifier.QueueSize = DefaultNotifierQueue
		}
	}
}

// Validate rejects configurations that must never become authoritative.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if cfg.MaxConcurrentTasks < 1 {
		errs = append(errs, errors.New("max_concurrent_tasks must be >= 1"))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if d, err := ParseDurationField("tick_interval", cfg.TickInterval); err != nil {
		errs = append(errs, err)
	} else if d > 0 && d < time.Second {
		errs = append(errs, errors.New("tick_interval must be >= 1s"))
	}
	if _, err := ParseDurationField("default_timeout", cfg.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	for cat, raw := range cfg.Timeouts {
		if !task.Category(cat).Valid() {
			errs = append(errs, fmt.Errorf("timeouts: unknown category %q", cat))
			continue
		}
		if _, err := ParseDurationField("timeouts."+cat, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if n := cfg.Notifier; n != nil && n.Enabled {
		if n.Telegram != nil && (strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0) {
			errs = append(errs, errors.New("notifier.telegram: token and chat_id are required"))
		}
		if n.SMTP != nil && (strings.TrimSpace(n.SMTP.Host) == "" || strings.TrimSpace(cfg.NotificationEmail) == "") {
			errs = append(errs, errors.New("notifier.smtp: host and notification_email are required"))
		}
	}
	if cfg.Collaborator != nil {
		if _, err := ParseDurationField("collaborator.timeout", cfg.Collaborator.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if d := cfg.Debug; d != nil && d.Enabled && strings.TrimSpace(d.Address) != "" {
		if _, _, err := net.SplitHostPort(d.Address); err != nil {
			errs = append(errs, fmt.Errorf("debug.address: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ValidateSchedules checks every descriptor in the map.
func ValidateSchedules(m ScheduleMap) error {
	var errs []error
	for cat, types := range m {
		if !task.Category(cat).Valid() {
			errs = append(errs, fmt.Errorf("schedules: unknown category %q", cat))
			continue
		}
		for typ, desc := range types {
			if _, err := recurrence.Parse(desc); err != nil {
				errs = append(errs, fmt.Errorf("schedules.%s.%s: %w", cat, typ, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Tick returns the scheduler interval.
func (c *Config) Tick() time.Duration {
	d, err := ParseDurationOrDefault("tick_interval", c.TickInterval, DefaultTickInterval)
	if err != nil {
		return DefaultTickInterval
	}
	return d
}

// TimeoutFor returns the per-call bound for a category.
func (c *Config) TimeoutFor(cat task.Category) time.Duration {
	if raw, ok := c.Timeouts[string(cat)]; ok {
		if d, err := ParseDurationField("timeouts", raw); err == nil && d > 0 {
			return d
		}
	}
	d, err := ParseDurationOrDefault("default_timeout", c.DefaultTimeout, DefaultTimeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// EffectiveLogLevel prefers logging.level over log_level.
func (c *Config) EffectiveLogLevel() string {
	if c.Logging != nil && strings.TrimSpace(c.Logging.Level) != "" {
		return c.Logging.Level
	}
	return c.LogLevel
}
