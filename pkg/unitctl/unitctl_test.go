package unitctl

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeUnit(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":                  DefaultUnit,
		"autopilot":         "autopilot.service",
		" worker ":          "worker.service",
		"autopilot.service": "autopilot.service",
		"backup.timer":      "backup.timer",
	}
	for in, want := range tests {
		if got := NormalizeUnit(in); got != want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusFromProps(t *testing.T) {
	t.Parallel()
	since := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	props := map[string]any{
		"Description":          "Automation manager",
		"LoadState":            "loaded",
		"ActiveState":          "active",
		"SubState":             "running",
		"ActiveEnterTimestamp": uint64(since.UnixMicro()),
	}
	svc := map[string]any{"MainPID": uint32(4242), "MemoryCurrent": ^uint64(0)}

	st := statusFromProps(DefaultUnit, props, svc)
	if !st.Found() || !st.Running() || st.MainPID != 4242 || st.Memory != 0 {
		t.Fatalf("status = %+v", st)
	}
	if !st.ActiveSince.Equal(since) {
		t.Fatalf("active since = %v", st.ActiveSince)
	}
	if got := st.Uptime(since.Add(90 * time.Minute)); got != 90*time.Minute {
		t.Fatalf("uptime = %v", got)
	}
	if s := st.String(); !strings.Contains(s, "active (running)") || !strings.Contains(s, "pid 4242") {
		t.Fatalf("String() = %q", s)
	}
}

func TestStatusNotFound(t *testing.T) {
	t.Parallel()
	st := statusFromProps("ghost.service", map[string]any{"LoadState": "not-found", "ActiveState": "inactive"}, nil)
	if st.Found() || st.Running() || st.Uptime(time.Now()) != 0 {
		t.Fatalf("status = %+v", st)
	}
	if st.String() != "ghost.service: not installed" {
		t.Fatalf("String() = %q", st.String())
	}
}
