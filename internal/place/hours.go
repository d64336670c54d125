package place

import (
	"fmt"
	"sort"
	"time"

	"github.com/daytrip/daytrip/internal/timeperiod"
)

// Slot is one opening range within a day. End before Start means the slot
// runs past midnight.
type Slot struct {
	Start timeperiod.Clock `json:"start" yaml:"start"`
	End   timeperiod.Clock `json:"end" yaml:"end"`
}

// Overnight reports whether the slot wraps past midnight.
func (s Slot) Overnight() bool {
	return s.End < s.Start
}

// Contains reports whether c falls inside the slot, inclusive at both ends.
func (s Slot) Contains(c timeperiod.Clock) bool {
	return timeperiod.IsWithinRange(c, s.Start, s.End, true)
}

// RemainingMinutes returns the minutes left before the slot closes, measured
// from c. The result is only meaningful when Contains(c) is true.
func (s Slot) RemainingMinutes(c timeperiod.Clock) int {
	if s.Overnight() && c >= s.Start {
		return int(timeperiod.MinutesPerDay - c + s.End)
	}
	return int(s.End - c)
}

func (s Slot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// AllDay is the slot of a place that never closes.
var AllDay = Slot{Start: 0, End: timeperiod.MinutesPerDay - 1}

// OpeningHours maps ISO weekdays (1 = Monday ... 7 = Sunday) to the ordered
// slots for that day. A missing weekday or an empty list means closed.
type OpeningHours map[int][]Slot

// EveryDay returns opening hours with the same slots on all seven weekdays.
func EveryDay(slots ...Slot) OpeningHours {
	h := make(OpeningHours, 7)
	for d := 1; d <= 7; d++ {
		h[d] = append([]Slot(nil), slots...)
	}
	return h
}

// ISOWeekday returns the ISO weekday of t (Monday = 1, Sunday = 7).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// TimeRange is the wire form of a Slot in place records.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// parseHours converts raw weekday ranges into sorted opening hours.
func parseHours(raw map[int][]TimeRange) (OpeningHours, error) {
	hours := make(OpeningHours, len(raw))
	for day, ranges := range raw {
		if day < 1 || day > 7 {
			return nil, &ValidationError{
				Field:  "hours",
				Reason: fmt.Sprintf("weekday %d out of range 1..7", day),
			}
		}

		slots := make([]Slot, 0, len(ranges))
		for i, r := range ranges {
			field := fmt.Sprintf("hours[%d][%d]", day, i)
			start, err := timeperiod.ParseClock(r.Start)
			if err != nil {
				return nil, &ValidationError{Field: field + ".start", Reason: err.Error()}
			}
			end, err := timeperiod.ParseClock(r.End)
			if err != nil {
				return nil, &ValidationError{Field: field + ".end", Reason: err.Error()}
			}
			slot := Slot{Start: start, End: end}
			if start == end {
				// Feeds write 00:00-00:00 for places open around the clock.
				slot = AllDay
			}
			slots = append(slots, slot)
		}
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
		hours[day] = slots
	}
	return hours, nil
}

// ranges converts opening hours back into their wire form.
func (h OpeningHours) ranges() map[int][]TimeRange {
	if h == nil {
		return nil
	}
	raw := make(map[int][]TimeRange, len(h))
	for day, slots := range h {
		rs := make([]TimeRange, 0, len(slots))
		for _, s := range slots {
			rs = append(rs, TimeRange{Start: s.Start.String(), End: s.End.String()})
		}
		raw[day] = rs
	}
	return raw
}
