// Package recurrence parses schedule descriptors and decides whether a task is due.
//
// Due-detection is a pure function of (rule, now, last run). The last-run watermark
// is what makes repeated evaluation inside one window return false.
package recurrence

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the normalized recurrence family.
type Kind int

const (
	Daily Kind = iota
	Weekly
	Biweekly
	Monthly
	Custom
	Cron
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Biweekly:
		return "biweekly"
	case Monthly:
		return "monthly"
	case Custom:
		return "custom"
	case Cron:
		return "cron"
	default:
		return "unknown"
	}
}

// ClockTime is a time of day in the scheduler timezone.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Rule is a parsed recurrence.
//
// Supported descriptors:
//   - "daily"
//   - "weekly" (Monday) or "weekly:mon,fri"
//   - "biweekly"
//   - "monthly" (day 1) or "monthly:15" (clamped to month length)
//   - "custom:09:00,18:30"
//   - "cron:0 10 * * *", or anything containing whitespace / starting with '@'
type Rule struct {
	Kind       Kind
	Days       []time.Weekday
	DayOfMonth int
	Times      []ClockTime
	Cron       string

	sched cron.Schedule
}

// Default is used when neither the task nor the schedule map names a recurrence.
var Default = Rule{Kind: Daily}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Parse turns a descriptor into a Rule.
func Parse(raw string) (Rule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Rule{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)

	if strings.HasPrefix(low, "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	}
	// Whitespace or a leading '@' means a bare cron expression.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	head, arg, hasArg := strings.Cut(low, ":")
	arg = strings.TrimSpace(arg)
	switch head {
	case "daily":
		if hasArg {
			return Rule{}, fmt.Errorf("daily takes no argument")
		}
		return Rule{Kind: Daily}, nil
	case "biweekly":
		if hasArg {
			return Rule{}, fmt.Errorf("biweekly takes no argument")
		}
		return Rule{Kind: Biweekly}, nil
	case "weekly":
		if !hasArg || arg == "" {
			return Rule{Kind: Weekly, Days: []time.Weekday{time.Monday}}, nil
		}
		days, err := parseWeekdays(arg)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Kind: Weekly, Days: days}, nil
	case "monthly":
		if !hasArg || arg == "" {
			return Rule{Kind: Monthly, DayOfMonth: 1}, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > 31 {
			return Rule{}, fmt.Errorf("invalid day of month %q (use 1..31)", arg)
		}
		return Rule{Kind: Monthly, DayOfMonth: n}, nil
	case "custom":
		if !hasArg || arg == "" {
			return Rule{}, fmt.Errorf("custom schedule needs at least one HH:MM time")
		}
		times, err := parseTimes(arg)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Kind: Custom, Times: times}, nil
	}
	return Rule{}, fmt.Errorf(
		"invalid schedule %q (use daily, weekly[:mon,fri], biweekly, monthly[:15], custom:09:00,18:00 or cron:<expr>)",
		raw,
	)
}

// MustParse is Parse for static descriptors.
func MustParse(raw string) Rule {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the first non-empty descriptor parsed, falling back to Default.
// Callers pass the task's own schedule first, then the schedule-map entry.
func Resolve(descriptors ...string) (Rule, error) {
	for _, d := range descriptors {
		if strings.TrimSpace(d) == "" {
			continue
		}
		return Parse(d)
	}
	return Default, nil
}

// String renders the canonical descriptor.
func (r Rule) String() string {
	switch r.Kind {
	case Weekly:
		names := make([]string, 0, len(r.Days))
		for _, d := range r.Days {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
		return "weekly:" + strings.Join(names, ",")
	case Monthly:
		return "monthly:" + strconv.Itoa(r.DayOfMonth)
	case Custom:
		parts := make([]string, 0, len(r.Times))
		for _, t := range r.Times {
			parts = append(parts, t.String())
		}
		return "custom:" + strings.Join(parts, ",")
	case Cron:
		return "cron:" + r.Cron
	default:
		return r.Kind.String()
	}
}

func parseCron(expr string) (Rule, error) {
	if expr == "" {
		return Rule{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Rule{Kind: Cron, Cron: expr, sched: sched}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "0": time.Sunday, "7": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "1": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "2": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "3": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "4": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "5": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "6": time.Saturday,
}

func parseWeekdays(arg string) ([]time.Weekday, error) {
	seen := map[time.Weekday]bool{}
	for _, p := range strings.Split(arg, ",") {
		p = strings.TrimSpace(p)
		d, ok := weekdayNames[p]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		seen[d] = true
	}
	days := make([]time.Weekday, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func parseTimes(arg string) ([]ClockTime, error) {
	seen := map[ClockTime]bool{}
	for _, p := range strings.Split(arg, ",") {
		p = strings.TrimSpace(p)
		m := reHHMM.FindStringSubmatch(p)
		if len(m) != 3 {
			return nil, fmt.Errorf("invalid time %q, expected HH:MM", p)
		}
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h > 23 || mm > 59 {
			return nil, fmt.Errorf("invalid time %q", p)
		}
		seen[ClockTime{Hour: h, Minute: mm}] = true
	}
	times := make([]ClockTime, 0, len(seen))
	for c := range seen {
		times = append(times, c)
	}
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})
	return times, nil
}
