// Package schedule computes offerable appointment start times from a
// stylist's weekly working hours. Everything here is pure: no I/O, no
// clock reads, and malformed hours degrade to zero slots instead of
// returning errors, so a broken template can never take down the booking
// page.
package schedule

import (
	"strings"
	"time"
)

// DayWindow is one day's opening hours from a stylist's weekly template.
// Start and End are wall-clock "HH:MM" strings in the salon's timezone.
// Off wins: when set, Start/End are ignored even if populated.
type DayWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Off   bool   `json:"off"`
}

// WeeklyHours maps weekday names (Monday..Sunday, case-insensitive) to
// that day's window.
type WeeklyHours map[string]DayWindow

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a candidate appointment start. The implied end is
// Start + the requested service duration; slots are never persisted.
type Slot struct {
	Start time.Time
}

// weekdayNames is the fixed weekday table, indexed by time.Weekday
// (0=Sunday..6=Saturday).
var weekdayNames = [7]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// WindowsForWeekday resolves the open windows for one weekday. Today that
// is zero or one window; the slice return leaves room for split shifts.
// A day marked off, missing from the template, or carrying an empty or
// unparseable start/end yields no windows.
func WindowsForWeekday(hours WeeklyHours, wd time.Weekday) []DayWindow {
	if hours == nil || wd < time.Sunday || wd > time.Saturday {
		return nil
	}
	name := weekdayNames[wd]
	win, ok := hours[name]
	if !ok {
		// Templates written by hand sometimes capitalize the day names.
		for k, v := range hours {
			if strings.EqualFold(k, name) {
				win, ok = v, true
				break
			}
		}
	}
	if !ok || win.Off {
		return nil
	}
	if _, err := parseClock(win.Start); err != nil {
		return nil
	}
	if _, err := parseClock(win.End); err != nil {
		return nil
	}
	return []DayWindow{win}
}

// BuildSlots generates candidate starts for every window on the given
// day. dayStart must be midnight of the target day in the salon's
// location. Slot k of a window starts at window.start + k*step; the last
// valid slot still fits entirely inside the window, with a slot ending
// exactly at the window's end allowed. Non-positive step or duration
// yields no slots.
func BuildSlots(dayStart time.Time, windows []DayWindow, step, duration time.Duration) []Slot {
	if step <= 0 || duration <= 0 {
		return nil
	}
	var slots []Slot
	for _, win := range windows {
		startOfs, err := parseClock(win.Start)
		if err != nil {
			continue
		}
		endOfs, err := parseClock(win.End)
		if err != nil {
			continue
		}
		if endOfs <= startOfs {
			continue
		}
		winStart := dayStart.Add(startOfs)
		winEnd := dayStart.Add(endOfs)
		for s := winStart; !s.Add(duration).After(winEnd); s = s.Add(step) {
			slots = append(slots, Slot{Start: s})
		}
	}
	return slots
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) share any
// instant. Touching endpoints do not overlap. This is the single overlap
// definition used by both availability filtering and commit-time checks.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FilterBusy drops candidates whose implied interval overlaps any busy
// interval, preserving chronological order.
func FilterBusy(slots []Slot, duration time.Duration, busy []Interval) []Slot {
	if len(busy) == 0 {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		end := s.Start.Add(duration)
		blocked := false
		for _, b := range busy {
			if Overlaps(s.Start, end, b.Start, b.End) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, s)
		}
	}
	return out
}

// FilterPast drops candidates starting at or before now. Callers compose
// this with their own clock so slot generation itself stays deterministic.
func FilterPast(slots []Slot, now time.Time) []Slot {
	out := slots[:0:0]
	for _, s := range slots {
		if s.Start.After(now) {
			out = append(out, s)
		}
	}
	return out
}

// parseClock converts "HH:MM" to an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
