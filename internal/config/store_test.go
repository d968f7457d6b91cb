package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

func TestOpenWritesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cfg := s.Get()
	if !cfg.Enabled || cfg.MaxDailyContent != 5 || cfg.MaxDailyEbooks != 2 || cfg.MaxConcurrentTasks != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Tick() != time.Minute || cfg.RetentionDays != 30 {
		t.Fatalf("unexpected runtime defaults: tick=%v retention=%d", cfg.Tick(), cfg.RetentionDays)
	}
	for _, name := range []string{FileJSON, FileSchedules} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	if got := s.Schedules().Lookup("content_creation", "blog"); got != "weekly" {
		t.Fatalf("default schedule for blog = %q", got)
	}

	// Reopening reads back the same values.
	s2, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Get().MaxConcurrentTasks != 3 {
		t.Fatal("defaults not persisted")
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		path    string
		body    string
		wantErr string
	}{
		{name: "unknown field", path: "config.json", body: `{"enabled":true,"bogus":1}`, wantErr: "unknown field"},
		{name: "trailing data", path: "config.json", body: `{"enabled":true}{}`, wantErr: "trailing"},
		{name: "bad timezone", path: "config.json", body: `{"timezone":"Mars/Olympus"}`, wantErr: "timezone"},
		{name: "bad timeout category", path: "config.json", body: `{"timeouts":{"billing":"1m"}}`, wantErr: "unknown category"},
		{name: "bad duration", path: "config.json", body: `{"tick_interval":"soon"}`, wantErr: "tick_interval"},
		{name: "yaml ok", path: "config.yaml", body: "max_concurrent_tasks: 7\ntimeouts:\n  publishing: 30s\n"},
		{name: "yaml unknown", path: "config.yml", body: "nope: 1\n", wantErr: "unknown field"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.path, []byte(tt.body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !cfg.Enabled {
					t.Fatal("enabled should default to true")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("want error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnabledExplicitFalse(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(`{"enabled":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enabled {
		t.Fatal("explicit false must be kept")
	}
}

func TestUpdatePersistsAndPublishes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	sub := s.Subscribe(1)
	defer s.Unsubscribe(sub)
	v0 := s.Version()

	if err := s.Update(func(c *Config) error {
		c.MaxConcurrentTasks = 5
		c.Timeouts = map[string]string{"publishing": "30s"}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Version() != v0+1 {
		t.Fatalf("version not bumped: %d", s.Version())
	}
	select {
	case snap := <-sub:
		if snap.Config.MaxConcurrentTasks != 5 || snap.Version != v0+1 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	if got := s.Get().TimeoutFor(task.Publishing); got != 30*time.Second {
		t.Fatalf("TimeoutFor(publishing) = %v", got)
	}
	if got := s.Get().TimeoutFor(task.ContentCreation); got != DefaultTimeout {
		t.Fatalf("TimeoutFor(content) = %v", got)
	}

	b, err := os.ReadFile(filepath.Join(dir, FileJSON))
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk["max_concurrent_tasks"].(float64) != 5 {
		t.Fatalf("update not persisted: %s", b)
	}
}

func TestUpdateRejectsInvalidWithoutCommit(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	v0 := s.Version()
	err = s.Update(func(c *Config) error {
		c.Timezone = "Nowhere/Never"
		return nil
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if s.Version() != v0 || s.Get().Timezone != "" {
		t.Fatal("invalid update must not be committed")
	}

	sentinel := errors.New("abort")
	if err := s.Update(func(c *Config) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("mutator error not returned: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	c := s.Get()
	c.Platforms[0] = "myspace"
	if s.Get().Platforms[0] == "myspace" {
		t.Fatal("Get leaked internal slice")
	}
}

func TestUpdateSchedules(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpdateSchedules(func(m ScheduleMap) error {
		m["publishing"]["social"] = "custom:09:00,18:00"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Schedules().Lookup("publishing", "social"); got != "custom:09:00,18:00" {
		t.Fatalf("schedule = %q", got)
	}
	err = s.UpdateSchedules(func(m ScheduleMap) error {
		m["publishing"]["social"] = "every other blue moon"
		return nil
	})
	if err == nil {
		t.Fatal("invalid descriptor accepted")
	}
}

func TestYAMLConfigPreferredAndRewritten(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("max_daily_content: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if s.Get().MaxDailyContent != 9 {
		t.Fatal("yaml value not loaded")
	}
	if err := s.Update(func(c *Config) error { c.MaxDailyEbooks = 4; return nil }); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if !strings.Contains(string(b), "max_daily_ebooks: 4") {
		t.Fatalf("yaml not rewritten: %s", b)
	}
	if _, err := os.Stat(filepath.Join(dir, FileJSON)); !os.IsNotExist(err) {
		t.Fatal("config.json must not be created next to config.yaml")
	}
}

func TestReloadSkipsUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	changed, err := s.Reload()
	if err != nil || changed {
		t.Fatalf("reload of unchanged files: changed=%v err=%v", changed, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileJSON), []byte(`{"max_concurrent_tasks":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err = s.Reload()
	if err != nil || !changed || s.Get().MaxConcurrentTasks != 1 {
		t.Fatalf("reload after edit: changed=%v err=%v", changed, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileJSON), []byte(`{"max_concurrent_tasks":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(); err == nil {
		t.Fatal("broken file must be rejected")
	}
	if s.Get().MaxConcurrentTasks != 1 {
		t.Fatal("rejected reload changed committed config")
	}
}

func TestWatchPublishesExternalEdit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	sub := s.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, FileJSON), []byte(`{"max_daily_content":11}`), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-sub:
			if snap.Config.MaxDailyContent == 11 {
				return
			}
		case <-deadline:
			t.Fatal("watch did not publish the edit")
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := a.Clone()
	b.MaxConcurrentTasks = 8
	b.Notifier = &NotifierConfig{Enabled: true, Telegram: &TelegramConfig{Token: "secret", ChatID: 1}}
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "scheduler,notifier" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}
