package recurrence

import (
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw       string
		kind      Kind
		canonical string
	}{
		{raw: "daily", kind: Daily, canonical: "daily"},
		{raw: "Weekly", kind: Weekly, canonical: "weekly:mon"},
		{raw: "weekly:fri,mon,friday", kind: Weekly, canonical: "weekly:mon,fri"},
		{raw: "biweekly", kind: Biweekly, canonical: "biweekly"},
		{raw: "monthly", kind: Monthly, canonical: "monthly:1"},
		{raw: "monthly:31", kind: Monthly, canonical: "monthly:31"},
		{raw: "custom:18:30, 09:00", kind: Custom, canonical: "custom:09:00,18:30"},
		{raw: "cron:0 10 * * *", kind: Cron, canonical: "cron:0 10 * * *"},
		{raw: "@hourly", kind: Cron, canonical: "cron:@hourly"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.String() != tt.canonical {
				t.Fatalf("String() = %q, want %q", got.String(), tt.canonical)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "hourly", "weekly:funday", "monthly:0", "monthly:32", "custom:", "custom:25:00", "cron:bad", "daily:1"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q) expected error", raw)
		}
	}
}

func TestResolveOrder(t *testing.T) {
	t.Parallel()
	r, err := Resolve("", "weekly:wed")
	if err != nil || r.String() != "weekly:wed" {
		t.Fatalf("map fallback: %v %v", r, err)
	}
	r, err = Resolve("monthly:2", "weekly:wed")
	if err != nil || r.String() != "monthly:2" {
		t.Fatalf("explicit wins: %v %v", r, err)
	}
	r, err = Resolve("", " ")
	if err != nil || r.Kind != Daily {
		t.Fatalf("system default: %v %v", r, err)
	}
}

func TestDailyScenario(t *testing.T) {
	t.Parallel()
	r := MustParse("daily")
	t0 := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	if !IsDue(r, t0, nil) {
		t.Fatal("never-run daily task must be due")
	}
	last := ptr(t0)
	if IsDue(r, t0, last) {
		t.Fatal("second evaluation in the same window must be false")
	}
	if IsDue(r, t0.Add(time.Hour), last) {
		t.Fatal("T0+1h must not be due")
	}
	if !IsDue(r, t0.Add(25*time.Hour), last) {
		t.Fatal("T0+25h must be due")
	}
}

func TestWeekly(t *testing.T) {
	t.Parallel()
	r := MustParse("weekly:mon,thu")
	mon := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) // Monday
	if !IsDue(r, mon, nil) {
		t.Fatal("monday should be due")
	}
	if IsDue(r, mon.Add(3*time.Hour), ptr(mon)) {
		t.Fatal("already ran today")
	}
	if IsDue(r, mon.AddDate(0, 0, 1), ptr(mon)) {
		t.Fatal("tuesday is not a listed day")
	}
	if !IsDue(r, mon.AddDate(0, 0, 3), ptr(mon)) {
		t.Fatal("thursday should be due")
	}
}

func TestBiweekly(t *testing.T) {
	t.Parallel()
	r := MustParse("biweekly")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if IsDue(r, t0.AddDate(0, 0, 13), ptr(t0)) || !IsDue(r, t0.AddDate(0, 0, 14), ptr(t0)) {
		t.Fatal("biweekly window mismatch")
	}
}

func TestMonthlyClamp(t *testing.T) {
	t.Parallel()
	r := MustParse("monthly:31")
	feb28 := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	if !IsDue(r, feb28, nil) {
		t.Fatal("day 31 clamps to Feb 28")
	}
	jan31 := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	if !IsDue(r, feb28, ptr(jan31)) {
		t.Fatal("ran last month; due again")
	}
	if IsDue(r, feb28.Add(time.Hour), ptr(feb28)) {
		t.Fatal("already ran this month")
	}
	if IsDue(r, time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC), ptr(feb28)) {
		t.Fatal("March 30 is not day 31")
	}
}

func TestCustomTimes(t *testing.T) {
	t.Parallel()
	r := MustParse("custom:09:00,18:00")
	loc := time.UTC
	morning := time.Date(2026, 10, 18, 9, 5, 0, 0, loc)
	if IsDue(r, morning, ptr(morning.Add(-time.Minute))) {
		t.Fatal("already ran after the 09:00 slot")
	}
	ranAt := time.Date(2026, 10, 18, 8, 0, 0, 0, loc)
	if !IsDue(r, morning, ptr(ranAt)) {
		t.Fatal("09:00 crossed since 08:00")
	}
	if IsDue(r, time.Date(2026, 10, 18, 17, 0, 0, 0, loc), ptr(morning)) {
		t.Fatal("no slot crossed between 09:05 and 17:00")
	}
	if !IsDue(r, time.Date(2026, 10, 19, 1, 0, 0, 0, loc), ptr(morning)) {
		t.Fatal("yesterday's 18:00 slot was crossed")
	}
}

func TestCron(t *testing.T) {
	t.Parallel()
	r := MustParse("cron:0 10 * * *")
	last := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	if IsDue(r, last.Add(23*time.Hour), ptr(last)) {
		t.Fatal("next activation is tomorrow 10:00")
	}
	if !IsDue(r, last.Add(24*time.Hour), ptr(last)) {
		t.Fatal("tomorrow 10:00 should be due")
	}
}

func TestFutureWatermarkBlocks(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	if IsDue(MustParse("daily"), now, ptr(now.Add(48*time.Hour))) {
		t.Fatal("future watermark must block")
	}
}

func TestNextWindow(t *testing.T) {
	t.Parallel()
	last := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	if got := NextWindow(MustParse("daily"), last.Add(time.Hour), ptr(last)); !got.Equal(last.Add(24 * time.Hour)) {
		t.Fatalf("daily next window = %v", got)
	}
	got := NextWindow(MustParse("weekly:mon"), last, ptr(last)) // Sunday
	if got.Weekday() != time.Monday {
		t.Fatalf("weekly next window = %v", got)
	}
}
