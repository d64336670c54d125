// Package timeperiod maps clock times to day-parts and tracks meal completion
// over a single planning run.
package timeperiod

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// DayPart is one of the five ordered segments of a day.
type DayPart string

const (
	Morning   DayPart = "morning"
	Lunch     DayPart = "lunch"
	Afternoon DayPart = "afternoon"
	Dinner    DayPart = "dinner"
	Night     DayPart = "night"
)

// DayParts lists all day-parts in chronological order.
var DayParts = []DayPart{Morning, Lunch, Afternoon, Dinner, Night}

// Ordinal returns the position of the day-part within the day (morning = 0).
// Unknown values return -1.
func (d DayPart) Ordinal() int {
	for i, p := range DayParts {
		if p == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the five known day-parts.
func (d DayPart) Valid() bool {
	return d.Ordinal() >= 0
}

// IsMeal reports whether the day-part is a meal window.
func (d DayPart) IsMeal() bool {
	return d == Lunch || d == Dinner
}

// ParseDayPart parses a day-part name, case-insensitively.
func ParseDayPart(s string) (DayPart, error) {
	d := DayPart(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown day-part %q", s)
	}
	return d, nil
}

// Clock is a wall-clock time expressed in minutes since midnight.
type Clock int

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q: hour out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q: minute out of range", s)
	}
	return Clock(h*60 + m), nil
}

// MustParseClock is like ParseClock but panics on error. Intended for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the wall-clock part of t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// On returns the instant at clock c on the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, int(c)/60, int(c)%60, 0, 0, t.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsWithinRange reports whether check lies in [start, end], inclusive at both ends.
// When allowOvernight is set and end is before start, the range wraps past midnight.
func IsWithinRange(check, start, end Clock, allowOvernight bool) bool {
	if start <= end {
		return check >= start && check <= end
	}
	if !allowOvernight {
		return false
	}
	return check >= start || check <= end
}
