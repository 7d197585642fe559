package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// validateWeeklyHours checks a weekly hours template before it is saved.
// The booking side tolerates broken templates by offering no slots, but
// the editing surface should reject them up front: only the seven weekday
// names are allowed as keys, and an open day needs a parseable start
// strictly before its end. Off days may carry stale start/end values.
func validateWeeklyHours(raw json.RawMessage) error {
	var hours map[string]struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Off   bool   `json:"off"`
	}
	if err := json.Unmarshal(raw, &hours); err != nil {
		return fmt.Errorf("weekly_hours must be an object keyed by weekday name")
	}
	for day, win := range hours {
		if !weekdayNames[strings.ToLower(day)] {
			return fmt.Errorf("unknown weekday %q", day)
		}
		if win.Off {
			continue
		}
		if win.Start == "" && win.End == "" {
			continue
		}
		start, err := time.Parse("15:04", win.Start)
		if err != nil {
			return fmt.Errorf("%s: start %q is not HH:MM", day, win.Start)
		}
		end, err := time.Parse("15:04", win.End)
		if err != nil {
			return fmt.Errorf("%s: end %q is not HH:MM", day, win.End)
		}
		if !end.After(start) {
			return fmt.Errorf("%s: end must be after start", day)
		}
	}
	return nil
}
