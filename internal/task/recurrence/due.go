package recurrence

import (
	"slices"
	"time"
)

const (
	day       = 24 * time.Hour
	fortnight = 14 * day
)

// IsDue reports whether a task with rule r and watermark lastRun should run at now.
//
// now carries the scheduler timezone; lastRun is converted into it before
// calendar comparisons. A nil lastRun means the task never ran.
func IsDue(r Rule, now time.Time, lastRun *time.Time) bool {
	var last time.Time
	if lastRun != nil {
		last = lastRun.In(now.Location())
		// A watermark from the future (clock skew, manual edit) blocks until reached.
		if last.After(now) {
			return false
		}
	}
	never := lastRun == nil

	switch r.Kind {
	case Daily:
		return never || now.Sub(last) >= day
	case Biweekly:
		return never || now.Sub(last) >= fortnight
	case Weekly:
		if !slices.Contains(r.Days, now.Weekday()) {
			return false
		}
		return never || !sameDay(last, now)
	case Monthly:
		if now.Day() != clampDay(r.DayOfMonth, now) {
			return false
		}
		return never || last.Year() != now.Year() || last.Month() != now.Month()
	case Custom:
		slot, ok := latestSlot(r.Times, now)
		if !ok {
			return false
		}
		return never || last.Before(slot)
	case Cron:
		if r.sched == nil {
			return false
		}
		if never {
			return true
		}
		return !r.sched.Next(last).After(now)
	}
	return false
}

// NextWindow estimates when the task becomes due again. Used for snapshots only.
func NextWindow(r Rule, now time.Time, lastRun *time.Time) time.Time {
	if IsDue(r, now, lastRun) {
		return now
	}
	switch r.Kind {
	case Daily:
		return lastRun.In(now.Location()).Add(day)
	case Biweekly:
		return lastRun.In(now.Location()).Add(fortnight)
	case Cron:
		if r.sched == nil {
			return time.Time{}
		}
		return r.sched.Next(now)
	}
	// Calendar kinds: probe day by day (or by minute for custom) within a bounded horizon.
	step := day
	probe := startOfDay(now).Add(day)
	if r.Kind == Custom {
		step = time.Minute
		probe = now.Truncate(time.Minute).Add(time.Minute)
	}
	limit := now.Add(62 * day)
	for ; probe.Before(limit); probe = probe.Add(step) {
		if IsDue(r, probe, lastRun) {
			return probe
		}
	}
	return time.Time{}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// clampDay maps day-of-month 31 to the last day of shorter months.
func clampDay(dom int, now time.Time) int {
	last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	if dom > last {
		return last
	}
	if dom < 1 {
		return 1
	}
	return dom
}

// latestSlot returns the most recent listed time-of-day instant at or before now,
// considering today and yesterday.
func latestSlot(times []ClockTime, now time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	today := startOfDay(now)
	for _, base := range []time.Time{today, today.AddDate(0, 0, -1)} {
		for _, c := range times {
			inst := time.Date(base.Year(), base.Month(), base.Day(), c.Hour, c.Minute, 0, 0, now.Location())
			if inst.After(now) {
				continue
			}
			if !found || inst.After(best) {
				best = inst
				found = true
			}
		}
	}
	return best, found
}
