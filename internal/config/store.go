package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"autopilot/internal/storage"
	logx "autopilot/pkg/logx"
)

const (
	FileJSON      = "config.json"
	FileSchedules = "schedules.json"
)

// Snapshot is an immutable view published to subscribers after every commit.
type Snapshot struct {
	Config    *Config
	Schedules ScheduleMap
	Version   uint64
}

// Store owns config.json (or config.yaml) and schedules.json.
//
// Changes go through Update/UpdateSchedules: clone, mutate, validate, persist,
// then commit. A value is authoritative only after it reached disk.
type Store struct {
	path      string
	schedPath string

	writeMu sync.Mutex // single writer

	mu        sync.RWMutex
	cfg       *Config
	sched     ScheduleMap
	version   uint64
	cfgHash   uint64
	schedHash uint64

	// subsMu guards the subscriber list and ensures we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan Snapshot

	log logx.Logger
}

// Open loads the configuration from dir, writing defaults for missing files.
// config.yaml / config.yml take precedence over config.json when present.
func Open(dir string, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path:      resolveConfigPath(dir),
		schedPath: filepath.Join(dir, FileSchedules),
		log:       log.With(logx.String("comp", "config")),
	}

	cfg, err := s.parseConfig()
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := s.persistConfig(cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		s.log.Info("default config written", logx.String("path", s.path))
	} else if err != nil {
		return nil, err
	}

	sched, err := s.parseSchedules()
	if errors.Is(err, os.ErrNotExist) {
		sched = DefaultSchedules()
		if err := storage.WriteJSONAtomic(s.schedPath, sched); err != nil {
			return nil, fmt.Errorf("write default schedules: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	s.cfg, s.sched, s.version = cfg, sched, 1
	s.cfgHash, s.schedHash = hashJSON(cfg), hashJSON(sched)
	return s, nil
}

func resolveConfigPath(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, FileJSON)
}

func (s *Store) Path() string          { return s.path }
func (s *Store) SchedulesPath() string { return s.schedPath }

// parseConfig reads and validates the config file without committing it.
func (s *Store) parseConfig() (*Config, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(s.path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(s.path), err)
	}
	return cfg, nil
}

// Decode parses config bytes strictly. YAML is accepted when path says so.
func Decode(path string, b []byte) (*Config, error) {
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) parseSchedules() (ScheduleMap, error) {
	b, err := os.ReadFile(s.schedPath)
	if err != nil {
		return nil, err
	}
	var m ScheduleMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", FileSchedules, err)
	}
	if m == nil {
		m = ScheduleMap{}
	}
	if err := ValidateSchedules(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) persistConfig(cfg *Config) error {
	b, err := encodeForPath(s.path, cfg)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(s.path, b, 0o600)
}

// Get returns a copy of the committed configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Schedules returns a copy of the committed schedule map.
func (s *Store) Schedules() ScheduleMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched.Clone()
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Config: s.cfg.Clone(), Schedules: s.sched.Clone(), Version: s.version}
}

// Update applies fn to a copy of the configuration. The copy is validated and
// persisted before it is committed; on any error the committed value is untouched.
func (s *Store) Update(fn func(cfg *Config) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.Get()
	if err := fn(next); err != nil {
		return err
	}
	Normalize(next)
	if err := Validate(next); err != nil {
		return err
	}
	if err := s.persistConfig(next); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	s.commit(next, nil)
	return nil
}

// UpdateSchedules is Update for schedules.json.
func (s *Store) UpdateSchedules(fn func(m ScheduleMap) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.Schedules()
	if err := fn(next); err != nil {
		return err
	}
	if err := ValidateSchedules(next); err != nil {
		return err
	}
	if err := storage.WriteJSONAtomic(s.schedPath, next); err != nil {
		return fmt.Errorf("persist schedules: %w", err)
	}
	s.commit(nil, next)
	return nil
}

// Reload re-reads both files and commits them when their content changed.
// It reports whether a new version was published.
func (s *Store) Reload() (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg, err := s.parseConfig()
	if err != nil {
		return false, err
	}
	sched, err := s.parseSchedules()
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	cfgSame := hashJSON(cfg) == s.cfgHash
	schedSame := hashJSON(sched) == s.schedHash
	s.mu.RUnlock()
	if cfgSame && schedSame {
		return false, nil
	}
	if cfgSame {
		cfg = nil
	}
	if schedSame {
		sched = nil
	}
	s.commit(cfg, sched)
	return true, nil
}

// commit installs non-nil parts, bumps the version and publishes.
func (s *Store) commit(cfg *Config, sched ScheduleMap) {
	s.mu.Lock()
	if cfg != nil {
		s.cfg = cfg
		s.cfgHash = hashJSON(cfg)
	}
	if sched != nil {
		s.sched = sched
		s.schedHash = hashJSON(sched)
	}
	s.version++
	snap := Snapshot{Config: s.cfg.Clone(), Schedules: s.sched.Clone(), Version: s.version}
	s.mu.Unlock()

	s.log.Debug("config committed", logx.Uint64("version", snap.Version))
	s.publish(snap)
}

func (s *Store) Subscribe(buffer int) chan Snapshot {
	ch := make(chan Snapshot, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch chan Snapshot) {
	if ch == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			last := len(s.subs) - 1
			s.subs[i] = s.subs[last]
			s.subs[last] = nil
			s.subs = s.subs[:last]
			close(ch)
			return
		}
	}
}

func (s *Store) publish(snap Snapshot) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		// Deliver the latest; a slow subscriber loses the oldest pending snapshot.
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
			s.log.Debug("config update dropped (subscriber slow)",
				logx.Int("queue_len", len(ch)), logx.Int("queue_cap", cap(ch)))
		}
	}
}
