package handlers

import (
	"encoding/json"
	"testing"
)

func TestValidateWeeklyHours(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid full week", `{
			"monday": {"start": "09:00", "end": "17:00"},
			"tuesday": {"start": "09:00", "end": "17:00"},
			"wednesday": {"off": true},
			"thursday": {"start": "10:00", "end": "20:00"},
			"friday": {"start": "09:00", "end": "17:00"},
			"saturday": {"start": "10:00", "end": "14:00"},
			"sunday": {"off": true}
		}`, false},
		{"off day with stale times", `{"monday": {"start": "09:00", "end": "17:00", "off": true}}`, false},
		{"blank day", `{"monday": {"start": "", "end": ""}}`, false},
		{"capitalized keys", `{"Monday": {"start": "09:00", "end": "17:00"}}`, false},
		{"unknown weekday", `{"funday": {"start": "09:00", "end": "17:00"}}`, true},
		{"bad start", `{"monday": {"start": "9am", "end": "17:00"}}`, true},
		{"missing end", `{"monday": {"start": "09:00", "end": ""}}`, true},
		{"inverted window", `{"monday": {"start": "17:00", "end": "09:00"}}`, true},
		{"not an object", `[1, 2, 3]`, true},
	}
	for _, tc := range cases {
		err := validateWeeklyHours(json.RawMessage(tc.raw))
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}
