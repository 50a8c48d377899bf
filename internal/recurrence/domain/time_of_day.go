package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is the wall-clock hour and minute a rule fires at.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates hour 0..23 and minute 0..59.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimeOfDay, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return NewTimeOfDay(hour, minute)
}

// Validate reports ErrInvalidTimeOfDay for out-of-range fields.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrInvalidTimeOfDay, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: minute %d", ErrInvalidTimeOfDay, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
