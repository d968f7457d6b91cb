// Package task holds the automation domain types shared by the registry,
// the scheduler loop, the executors and the execution history.
package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Category is the closed set of task families.
type Category string

const (
	ContentCreation Category = "content_creation"
	Publishing      Category = "publishing"
	Monetization    Category = "monetization"
	Maintenance     Category = "maintenance"
)

// Categories lists every recognized category in evaluation order.
var Categories = []Category{ContentCreation, Publishing, Monetization, Maintenance}

func (c Category) Valid() bool {
	switch c {
	case ContentCreation, Publishing, Monetization, Maintenance:
		return true
	}
	return false
}

// ParseCategory normalizes user input ("Content-Creation" works too).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
	}
	return c, nil
}

// Params is the opaque input mapping handed verbatim to executors.
type Params map[string]any

// String returns a string parameter, or "" when missing or not a string.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case fmt.Stringer:
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Int returns an integer parameter, or def. JSON numbers decode as float64.
func (p Params) Int(key string, def int) int {
	switch x := p[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(x), "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a boolean parameter, or def.
func (p Params) Bool(key string, def bool) bool {
	switch x := p[key].(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1", "on":
			return true
		case "false", "no", "0", "off":
			return false
		}
	}
	return def
}

// Clone returns a shallow copy; nested values are shared.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// Task is one configured unit of recurring work.
//
// Identity for callers is (category, index); ID is internal and only routes
// the last-run watermark and the in-flight gate.
type Task struct {
	ID         string     `json:"id"`
	Category   Category   `json:"-"`
	Type       string     `json:"type"`
	Parameters Params     `json:"parameters,omitempty"`
	Schedule   string     `json:"schedule,omitempty"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (t *Task) UnmarshalJSON(b []byte) error {
	type raw struct {
		ID         string     `json:"id"`
		Type       string     `json:"type"`
		Parameters Params     `json:"parameters,omitempty"`
		Schedule   string     `json:"schedule,omitempty"`
		Enabled    *bool      `json:"enabled"`
		LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var r raw
	if err := dec.Decode(&r); err != nil {
		return err
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	*t = Task{
		ID:         r.ID,
		Type:       r.Type,
		Parameters: r.Parameters,
		Schedule:   r.Schedule,
		Enabled:    enabled,
		LastRunAt:  r.LastRunAt,
	}
	return nil
}

// Clone deep-copies the mutable parts so consumers get a read snapshot.
func (t Task) Clone() Task {
	cp := t
	cp.Parameters = t.Parameters.Clone()
	if t.LastRunAt != nil {
		at := *t.LastRunAt
		cp.LastRunAt = &at
	}
	return cp
}

// Key identifies the task for overlap gating. Ad-hoc runs without an ID
// fall back to category/type.
func (t Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return "adhoc:" + string(t.Category) + "/" + t.Type
}

func (t Task) String() string {
	return string(t.Category) + "/" + t.Type
}

// Validate checks the fields required before a task can be persisted.
func (t Task) Validate() error {
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", t.Category)}
	}
	if strings.TrimSpace(t.Type) == "" {
		return &ValidationError{Field: "type", Reason: "type is required"}
	}
	return nil
}
