package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"autopilot/internal/task"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, rec task.ExecutionRecord) {
	status := "ok"
	if !rec.Success {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s  %-4s  %-9s  %s/%s  %s",
		rec.Timestamp.Format(time.RFC3339),
		status,
		rec.Trigger,
		rec.Category, rec.Type,
		rec.Duration.Round(time.Millisecond),
	)
	if !rec.Success {
		fmt.Fprintf(w, "  %s: %s", rec.Reason, rec.Error)
	}
	fmt.Fprintln(w)
}

func printTask(w io.Writer, index int, t task.Task) {
	state := "enabled"
	if !t.Enabled {
		state = "disabled"
	}
	schedule := t.Schedule
	if schedule == "" {
		schedule = "(schedule map)"
	}
	last := "never"
	if t.LastRunAt != nil {
		last = t.LastRunAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "  [%d] %-18s %-15s %-8s last run: %s", index, t.Type, schedule, state, last)
	if len(t.Parameters) > 0 {
		b, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(w, "  %s", b)
	}
	fmt.Fprintln(w)
}

func heading(w io.Writer, s string) {
	fmt.Fprintf(w, "%s\n%s\n", s, strings.Repeat("-", len(s)))
}
