package schedule

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC) // a Monday
}

func at(base time.Time, hour, min int) time.Time {
	return base.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestWindowsForWeekdayOffWins(t *testing.T) {
	hours := WeeklyHours{
		"monday": {Start: "09:00", End: "17:00", Off: true},
	}
	if got := WindowsForWeekday(hours, time.Monday); len(got) != 0 {
		t.Fatalf("off day produced windows: %v", got)
	}
}

func TestWindowsForWeekdayMalformed(t *testing.T) {
	cases := map[string]WeeklyHours{
		"empty start":   {"monday": {Start: "", End: "17:00"}},
		"empty end":     {"monday": {Start: "09:00", End: ""}},
		"garbage start": {"monday": {Start: "morning", End: "17:00"}},
		"missing day":   {"tuesday": {Start: "09:00", End: "17:00"}},
		"nil template":  nil,
	}
	for name, hours := range cases {
		if got := WindowsForWeekday(hours, time.Monday); len(got) != 0 {
			t.Fatalf("%s: expected no windows, got %v", name, got)
		}
	}
}

func TestWindowsForWeekdayCaseInsensitive(t *testing.T) {
	hours := WeeklyHours{
		"Monday": {Start: "10:00", End: "18:00"},
	}
	got := WindowsForWeekday(hours, time.Monday)
	if len(got) != 1 || got[0].Start != "10:00" || got[0].End != "18:00" {
		t.Fatalf("unexpected windows: %v", got)
	}
}

func TestWindowsForWeekdaySundayConvention(t *testing.T) {
	hours := WeeklyHours{
		"sunday": {Start: "11:00", End: "15:00"},
	}
	if got := WindowsForWeekday(hours, time.Sunday); len(got) != 1 {
		t.Fatalf("weekday 0 should resolve to sunday, got %v", got)
	}
	if got := WindowsForWeekday(hours, time.Saturday); len(got) != 0 {
		t.Fatalf("saturday should have no windows, got %v", got)
	}
}

func TestBuildSlotsMorningWindow(t *testing.T) {
	base := day(t)
	windows := []DayWindow{{Start: "09:00", End: "12:00"}}
	slots := BuildSlots(base, windows, 15*time.Minute, 30*time.Minute)

	// 09:00 through 11:30 inclusive, every 15 minutes; 11:30+30 lands
	// exactly on the window end and is still offerable, 11:45 is not.
	want := []time.Time{}
	for s := at(base, 9, 0); !s.After(at(base, 11, 30)); s = s.Add(15 * time.Minute) {
		want = append(want, s)
	}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(slots), len(want))
	}
	for i := range want {
		if !slots[i].Start.Equal(want[i]) {
			t.Fatalf("slot %d = %v, want %v", i, slots[i].Start, want[i])
		}
	}
	if last := slots[len(slots)-1].Start; !last.Equal(at(base, 11, 30)) {
		t.Fatalf("last slot = %v, want 11:30", last)
	}
}

func TestBuildSlotsDurationLongerThanWindow(t *testing.T) {
	base := day(t)
	windows := []DayWindow{{Start: "09:00", End: "09:30"}}
	if slots := BuildSlots(base, windows, 15*time.Minute, time.Hour); len(slots) != 0 {
		t.Fatalf("expected no slots, got %v", slots)
	}
}

func TestBuildSlotsDegenerateInputs(t *testing.T) {
	base := day(t)
	cases := []struct {
		name     string
		windows  []DayWindow
		step     time.Duration
		duration time.Duration
	}{
		{"inverted window", []DayWindow{{Start: "17:00", End: "09:00"}}, 15 * time.Minute, 30 * time.Minute},
		{"zero-length window", []DayWindow{{Start: "09:00", End: "09:00"}}, 15 * time.Minute, 30 * time.Minute},
		{"zero step", []DayWindow{{Start: "09:00", End: "17:00"}}, 0, 30 * time.Minute},
		{"negative duration", []DayWindow{{Start: "09:00", End: "17:00"}}, 15 * time.Minute, -time.Minute},
		{"unparseable window", []DayWindow{{Start: "9am", End: "5pm"}}, 15 * time.Minute, 30 * time.Minute},
	}
	for _, tc := range cases {
		if slots := BuildSlots(base, tc.windows, tc.step, tc.duration); len(slots) != 0 {
			t.Fatalf("%s: expected no slots, got %v", tc.name, slots)
		}
	}
}

func TestBuildSlotsDeterministic(t *testing.T) {
	base := day(t)
	windows := []DayWindow{{Start: "09:00", End: "13:00"}}
	a := BuildSlots(base, windows, 15*time.Minute, 45*time.Minute)
	b := BuildSlots(base, windows, 15*time.Minute, 45*time.Minute)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic slot count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) {
			t.Fatalf("slot %d differs between runs", i)
		}
	}
}

func TestOverlapsSymmetric(t *testing.T) {
	base := day(t)
	pairs := [][4]time.Time{
		{at(base, 9, 0), at(base, 10, 0), at(base, 9, 30), at(base, 10, 30)},
		{at(base, 9, 0), at(base, 10, 0), at(base, 10, 0), at(base, 11, 0)},
		{at(base, 9, 0), at(base, 12, 0), at(base, 10, 0), at(base, 11, 0)},
		{at(base, 9, 0), at(base, 9, 30), at(base, 14, 0), at(base, 15, 0)},
	}
	for i, p := range pairs {
		ab := Overlaps(p[0], p[1], p[2], p[3])
		ba := Overlaps(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Fatalf("pair %d: Overlaps is not symmetric (%v vs %v)", i, ab, ba)
		}
	}
}

func TestOverlapsTouchingIntervals(t *testing.T) {
	base := day(t)
	if Overlaps(at(base, 9, 0), at(base, 10, 0), at(base, 10, 0), at(base, 11, 0)) {
		t.Fatal("touching intervals must not overlap")
	}
	if !Overlaps(at(base, 9, 0), at(base, 10, 1), at(base, 10, 0), at(base, 11, 0)) {
		t.Fatal("one-minute overlap not detected")
	}
}

func TestFilterBusy(t *testing.T) {
	base := day(t)
	slots := []Slot{
		{Start: at(base, 10, 0)},
		{Start: at(base, 10, 15)},
		{Start: at(base, 10, 30)},
	}
	busy := []Interval{{Start: at(base, 10, 0), End: at(base, 10, 30)}}

	got := FilterBusy(slots, 30*time.Minute, busy)
	if len(got) != 1 {
		t.Fatalf("got %d slots, want 1: %v", len(got), got)
	}
	// 10:15+30 crosses the booking, 10:30 starts exactly at its end.
	if !got[0].Start.Equal(at(base, 10, 30)) {
		t.Fatalf("surviving slot = %v, want 10:30", got[0].Start)
	}
}

func TestFilterPast(t *testing.T) {
	base := day(t)
	slots := []Slot{
		{Start: at(base, 9, 0)},
		{Start: at(base, 9, 15)},
		{Start: at(base, 9, 30)},
	}
	got := FilterPast(slots, at(base, 9, 15))
	if len(got) != 1 || !got[0].Start.Equal(at(base, 9, 30)) {
		t.Fatalf("unexpected slots: %v", got)
	}
}
