package config

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// Config is the automation configuration (config.json or config.yaml).
//
// The first block mirrors the dashboard's settings; the rest are runtime
// knobs. All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Enabled             bool     `json:"enabled"`
	MaxDailyContent     int      `json:"max_daily_content"`
	MaxDailyEbooks      int      `json:"max_daily_ebooks"`
	MaxConcurrentTasks  int      `json:"max_concurrent_tasks"`
	ContentTypes        []string `json:"content_types"`
	Platforms           []string `json:"platforms"`
	MonetizationMethods []string `json:"monetization_methods"`
	NotificationEmail   string   `json:"notification_email"`
	LogLevel            string   `json:"log_level"`

	// Timezone used for due detection and day partitions (IANA name, default Local).
	Timezone     string `json:"timezone,omitempty"`
	TickInterval string `json:"tick_interval,omitempty"`
	// DefaultTimeout bounds one executor call unless Timeouts names its category.
	DefaultTimeout string            `json:"default_timeout,omitempty"`
	Timeouts       map[string]string `json:"timeouts,omitempty"`
	RetentionDays  int               `json:"retention_days,omitempty"`

	Logging      *LoggingConfig      `json:"logging,omitempty"`
	Storage      *StorageConfig      `json:"storage,omitempty"`
	Notifier     *NotifierConfig     `json:"notifier,omitempty"`
	Collaborator *CollaboratorConfig `json:"collaborator,omitempty"`
	Debug        *DebugConfig        `json:"debug,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (c *Config) UnmarshalJSON(b []byte) error {
	type plain Config
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(c)}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	c.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"` // overrides log_level when set
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the execution history backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "history.db", "busy_timeout": "5s" }
//
// Relative paths resolve against the automation directory.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotifierConfig controls failure notifications. Secrets are never logged.
type NotifierConfig struct {
	Enabled    bool            `json:"enabled"`
	RatePerSec int             `json:"rate_per_sec,omitempty"`
	QueueSize  int             `json:"queue_size,omitempty"`
	Telegram   *TelegramConfig `json:"telegram,omitempty"`
	SMTP       *SMTPConfig     `json:"smtp,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// SMTPConfig delivers to Config.NotificationEmail.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
}

// CollaboratorConfig points executors at the content/publishing/monetization
// backend. An empty Endpoint selects the dry-run collaborator.
type CollaboratorConfig struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout,omitempty"`
	Token    string `json:"token,omitempty"`
}

// DebugConfig controls the optional local HTTP listener serving /healthz,
// /status and the pprof handlers while the scheduler runs.
type DebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"` // default 127.0.0.1:6060
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

// ScheduleMap is the schedules.json content: category -> type -> descriptor.
type ScheduleMap map[string]map[string]string

// Lookup returns the descriptor registered for (category, type), or "".
func (m ScheduleMap) Lookup(category, typ string) string {
	if m == nil {
		return ""
	}
	return m[category][typ]
}

func (m ScheduleMap) Clone() ScheduleMap {
	out := make(ScheduleMap, len(m))
	for k, v := range m {
		out[k] = maps.Clone(v)
	}
	return out
}

// Clone deep-copies cfg so subscribers never share mutable state with the store.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ContentTypes = slices.Clone(c.ContentTypes)
	cp.Platforms = slices.Clone(c.Platforms)
	cp.MonetizationMethods = slices.Clone(c.MonetizationMethods)
	cp.Timeouts = maps.Clone(c.Timeouts)
	if c.Logging != nil {
		l := *c.Logging
		cp.Logging = &l
	}
	if c.Storage != nil {
		s := *c.Storage
		cp.Storage = &s
	}
	if c.Notifier != nil {
		n := *c.Notifier
		if n.Telegram != nil {
			t := *n.Telegram
			n.Telegram = &t
		}
		if n.SMTP != nil {
			s := *n.SMTP
			n.SMTP = &s
		}
		cp.Notifier = &n
	}
	if c.Collaborator != nil {
		co := *c.Collaborator
		cp.Collaborator = &co
	}
	if c.Debug != nil {
		d := *c.Debug
		cp.Debug = &d
	}
	return &cp
}
