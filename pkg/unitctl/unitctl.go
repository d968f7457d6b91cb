// Package unitctl controls the systemd unit the scheduler daemon runs under.
package unitctl

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultUnit is the unit name installed for the daemon.
const DefaultUnit = "autopilot.service"

var ErrUnsupported = errors.New("systemd is not available on this platform")

// Status is the current state of a unit.
type Status struct {
	Unit        string    `json:"unit"`
	Description string    `json:"description,omitempty"`
	LoadState   string    `json:"load_state"`
	ActiveState string    `json:"active_state"`
	SubState    string    `json:"sub_state"`
	MainPID     uint32    `json:"main_pid,omitempty"`
	Memory      uint64    `json:"memory,omitempty"`
	ActiveSince time.Time `json:"active_since,omitempty"`
	StateChange time.Time `json:"state_change,omitempty"`
}

func (s Status) Found() bool { return s.LoadState != "" && s.LoadState != "not-found" }

func (s Status) Running() bool { return s.ActiveState == "active" }

// Uptime is the time since the unit became active, or 0 when it is not.
func (s Status) Uptime(now time.Time) time.Duration {
	if !s.Running() || s.ActiveSince.IsZero() {
		return 0
	}
	return now.Sub(s.ActiveSince).Truncate(time.Second)
}

// String renders a one-line summary in the style of systemctl's Active: line.
func (s Status) String() string {
	if !s.Found() {
		return fmt.Sprintf("%s: not installed", s.Unit)
	}
	line := fmt.Sprintf("%s: %s (%s)", s.Unit, s.ActiveState, s.SubState)
	if s.Running() && !s.ActiveSince.IsZero() {
		line += fmt.Sprintf(" since %s; %s", s.ActiveSince.Format(time.RFC3339), s.Uptime(time.Now()))
	}
	if s.MainPID > 0 {
		line += fmt.Sprintf(", pid %d", s.MainPID)
	}
	return line
}

// NormalizeUnit appends ".service" to a bare unit name.
func NormalizeUnit(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUnit
	}
	if !strings.Contains(name, ".") {
		name += ".service"
	}
	return name
}

// statusFromProps builds a Status from unit and service properties as
// returned over D-Bus. Missing keys leave zero values.
func statusFromProps(unit string, props, svc map[string]any) Status {
	st := Status{
		Unit:        unit,
		Description: stringProp(props, "Description"),
		LoadState:   stringProp(props, "LoadState"),
		ActiveState: stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		ActiveSince: timestampProp(props, "ActiveEnterTimestamp"),
		StateChange: timestampProp(props, "StateChangeTimestamp"),
	}
	if pid, ok := svc["MainPID"].(uint32); ok {
		st.MainPID = pid
	}
	// MemoryCurrent is MaxUint64 when accounting is off.
	if mem, ok := svc["MemoryCurrent"].(uint64); ok && mem != ^uint64(0) {
		st.Memory = mem
	}
	return st
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// timestampProp converts a systemd timestamp (microseconds since the epoch).
func timestampProp(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}
