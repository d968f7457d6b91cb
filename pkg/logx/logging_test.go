package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	// Must not panic.
	l.Info("ignored", String("k", "v"))
}

func TestWithFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Debug("hello", Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "test" || m["message"] != "hello" || m["n"] != float64(3) {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Error("kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Fatalf("error entry missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestApplyFollowsReload(t *testing.T) {
	var buf bytes.Buffer
	svc := &Service{console: &buf}
	svc.Apply(Config{Level: "warn", Console: true})
	l := Logger{svc: svc}.With(String("comp", "scheduler"))

	l.Info("before reload")
	svc.Apply(Config{Level: "debug", Console: true})
	l.Debug("after reload")

	out := buf.String()
	if strings.Contains(out, "before reload") || !strings.Contains(out, "after reload") {
		t.Fatalf("level change not applied: %q", out)
	}
	if !strings.Contains(out, "scheduler") {
		t.Fatalf("derived fields lost: %q", out)
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	svc, l := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	l.Info("to file", String("task", "shorts"))
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"task":"shorts"`) {
		t.Fatalf("file sink missing field: %s", b)
	}
}
