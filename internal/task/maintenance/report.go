package maintenance

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"autopilot/internal/storage"
	"autopilot/internal/task"
)

// Summary is the execution report written to the reports directory.
type Summary struct {
	Period      string                   `json:"period"`
	From        time.Time                `json:"from"`
	To          time.Time                `json:"to"`
	GeneratedAt time.Time                `json:"generated_at"`
	Total       int                      `json:"total"`
	Succeeded   int                      `json:"succeeded"`
	Failed      int                      `json:"failed"`
	ByCategory  map[task.Category]*Tally `json:"by_category"`
	ByReason    map[string]int           `json:"by_reason,omitempty"`
	ByType      map[string]*Tally        `json:"by_type"`
}

type Tally struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (t *Tally) add(ok bool) {
	t.Total++
	if ok {
		t.Succeeded++
	} else {
		t.Failed++
	}
}

// periodStart returns the beginning of the reporting window and the number
// of day partitions to read.
func periodStart(period string, now time.Time) (time.Time, int, error) {
	switch period {
	case "daily":
		return now.AddDate(0, 0, -1), 1, nil
	case "", "weekly":
		return now.AddDate(0, 0, -7), 7, nil
	case "monthly":
		return now.AddDate(0, -1, 0), 31, nil
	}
	return time.Time{}, 0, fmt.Errorf("unsupported report period %q", period)
}

// Summarize builds a report from records whose timestamp falls in [from, to].
func Summarize(period string, from, to time.Time, recs []task.ExecutionRecord) Summary {
	s := Summary{
		Period:     period,
		From:       from,
		To:         to,
		ByCategory: make(map[task.Category]*Tally),
		ByReason:   make(map[string]int),
		ByType:     make(map[string]*Tally),
	}
	for _, r := range recs {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		s.Total++
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
			s.ByReason[r.Reason]++
		}
		c := s.ByCategory[r.Category]
		if c == nil {
			c = &Tally{}
			s.ByCategory[r.Category] = c
		}
		c.add(r.Success)
		k := string(r.Category) + "/" + r.Type
		ty := s.ByType[k]
		if ty == nil {
			ty = &Tally{}
			s.ByType[k] = ty
		}
		ty.add(r.Success)
	}
	return s
}

func (d Deps) report(ctx context.Context, t task.Task) (map[string]any, error) {
	period := t.Parameters.String("period")
	now := d.now()
	from, days, err := periodStart(period, now)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "weekly"
	}
	recs, err := d.History.Query(ctx, storage.Query{Days: days, Now: now})
	if err != nil {
		return nil, task.Transient(fmt.Errorf("read history: %w", err))
	}
	sum := Summarize(period, from, now, recs)
	sum.GeneratedAt = now

	path := filepath.Join(d.ReportsDir, fmt.Sprintf("report-%s-%s.json", period, now.Format(task.DayLayout)))
	if err := storage.WriteJSONAtomic(path, sum); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return map[string]any{
		"path":      path,
		"period":    period,
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
	}, nil
}
