package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"slotforge/internal/model"
)

// FallbackServiceDuration is used when neither the rule nor the location
// defines a service duration.
const FallbackServiceDuration = 60

// DateFormat is the canonical calendar-date layout used across the engine.
const DateFormat = "2006-01-02"

// ParseClock parses a wall-clock string ("09:00" or "09:00:00") into hour
// and minute.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour: %s", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute: %s", s)
	}

	return hour, minute, nil
}

// LocalMidnight returns the start of t's calendar day in loc.
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ResolveLocal converts a wall-clock time on date (a local midnight) into an
// absolute instant in date's zone.
//
// A wall-clock time inside a spring-forward gap does not exist and yields a
// ValidationError. A wall-clock time repeated by a fall-back transition is
// resolved to the earlier (standard-time-first) instant.
func ResolveLocal(date time.Time, hour, minute int) (time.Time, error) {
	loc := date.Location()
	t := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)

	if t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, &model.ValidationError{
			Date:   date.Format(DateFormat),
			Reason: fmt.Sprintf("local time %02d:%02d does not exist (DST gap)", hour, minute),
		}
	}

	// An ambiguous wall clock repeats one hour apart; prefer the first
	// occurrence.
	if alt := t.Add(-time.Hour); alt.Hour() == hour && alt.Minute() == minute && alt.Day() == t.Day() {
		return alt, nil
	}
	return t, nil
}
