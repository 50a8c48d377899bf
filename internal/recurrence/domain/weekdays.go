package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekdays is a set of weekdays stored as a bitmask, bit 0 = Sunday.
type Weekdays uint8

const allWeekdays Weekdays = 1<<7 - 1

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// NewWeekdays builds a set from weekday indices 0..6 (Sunday=0).
// Duplicates collapse.
func NewWeekdays(indices ...int) (Weekdays, error) {
	var w Weekdays
	for _, i := range indices {
		if i < 0 || i > 6 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, i)
		}
		w |= 1 << uint(i)
	}
	return w, nil
}

// invalidWeekdayBit marks a stored index outside 0..6.
const invalidWeekdayBit Weekdays = 1 << 7

// RestoreWeekdays rebuilds a stored set without rejecting it. Indices outside
// 0..6 set a marker bit, so Definition.Validate reports ErrInvalidWeekday
// when the rule is next scheduled rather than when it is loaded.
func RestoreWeekdays(indices ...int) Weekdays {
	var w Weekdays
	for _, i := range indices {
		if i < 0 || i > 6 {
			w |= invalidWeekdayBit
			continue
		}
		w |= 1 << uint(i)
	}
	return w
}

// ParseWeekdays accepts a comma separated list of indices (Sunday=0),
// English names or inclusive ranges, e.g. "1,3", "mon,wed" or "mon-fri".
// Names match on their first three letters. Ranges do not wrap.
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		if !isRange {
			to = from
		}
		start, err := parseWeekday(from)
		if err != nil {
			return 0, err
		}
		end, err := parseWeekday(to)
		if err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("%w: range %q runs backwards", ErrInvalidWeekday, part)
		}
		for d := start; d <= end; d++ {
			w = w.With(d)
		}
	}
	return w, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 || i > 6 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, i)
		}
		return time.Weekday(i), nil
	}
	if len(s) >= 3 {
		if day, ok := weekdayNames[s[:3]]; ok {
			return day, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

// With returns the set plus day.
func (w Weekdays) With(day time.Weekday) Weekdays {
	return w | 1<<uint(day)
}

// Contains reports whether day is in the set.
func (w Weekdays) Contains(day time.Weekday) bool {
	return day >= time.Sunday && day <= time.Saturday && w&(1<<uint(day)) != 0
}

func (w Weekdays) IsEmpty() bool { return w&allWeekdays == 0 }

// Indices returns the members as ascending indices.
func (w Weekdays) Indices() []int {
	out := make([]int, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Contains(d) {
			out = append(out, int(d))
		}
	}
	return out
}

func (w Weekdays) String() string {
	names := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Contains(d) {
			names = append(names, d.String()[:3])
		}
	}
	return strings.Join(names, ",")
}
