package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Zone-less layouts are read in the clinic's time zone.
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 or one of the zone-less ISO forms.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// parseInterval returns an input error for unparseable or inverted ranges.
func parseInterval(startRaw, endRaw string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseTimestamp(startRaw, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Input("start_at: invalid date/time format")
	}
	end, err := ParseTimestamp(endRaw, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Input("end_at: invalid date/time format")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperr.Input("end_at must be after start_at")
	}
	return start, end, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func greeting(t time.Time, loc *time.Location) string {
	switch h := t.In(loc).Hour(); {
	case h >= 5 && h <= 11:
		return "Good morning"
	case h >= 12 && h <= 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
