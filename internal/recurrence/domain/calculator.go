package domain

import (
	"fmt"
	"time"
)

// Definition is the shape of a rule: when it fires, independent of any
// particular instant.
type Definition struct {
	Frequency Frequency
	Days      Weekdays
	Time      TimeOfDay
}

// NewDefinition validates and returns a definition. Days are ignored for
// daily rules.
func NewDefinition(freq Frequency, days Weekdays, tod TimeOfDay) (Definition, error) {
	def := Definition{Frequency: freq, Days: days, Time: tod}
	if freq == FrequencyDaily {
		def.Days = 0
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate reports why the definition cannot be scheduled.
func (d Definition) Validate() error {
	if !d.Frequency.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, d.Frequency)
	}
	if err := d.Time.Validate(); err != nil {
		return err
	}
	if d.Frequency == FrequencyWeekly && d.Days.IsEmpty() {
		return ErrEmptyWeekdays
	}
	if d.Days&^allWeekdays != 0 {
		return ErrInvalidWeekday
	}
	return nil
}

// Equal reports whether two definitions schedule identically.
func (d Definition) Equal(other Definition) bool {
	if d.Frequency != other.Frequency || d.Time != other.Time {
		return false
	}
	return d.Frequency == FrequencyDaily || d.Days == other.Days
}

// NextAfter is ComputeNextFireAt for this definition.
func (d Definition) NextAfter(ref time.Time) (time.Time, error) {
	return ComputeNextFireAt(d.Frequency, d.Days, d.Time, ref)
}

// ComputeNextFireAt returns the first instant strictly after ref at which a
// rule of the given shape fires. Dates are built with time.Date in ref's
// location, so the wall-clock time survives DST changes.
//
// Daily results lie in (ref, ref+1 day]; weekly results lie in
// (ref, ref+7 days] and fall on a member of days.
func ComputeNextFireAt(freq Frequency, days Weekdays, tod TimeOfDay, ref time.Time) (time.Time, error) {
	def := Definition{Frequency: freq, Days: days, Time: tod}
	if err := def.Validate(); err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch freq {
	case FrequencyDaily:
		next = slot(ref, 0, tod)
		if !next.After(ref) {
			next = slot(ref, 1, tod)
		}
	case FrequencyWeekly:
		found := false
		for i := 0; i < 7; i++ {
			candidate := slot(ref, i, tod)
			if days.Contains(candidate.Weekday()) && candidate.After(ref) {
				next, found = candidate, true
				break
			}
		}
		if !found {
			// Only reachable when ref's own weekday is the sole match and
			// today's slot has passed.
			next = slot(ref, 7, tod)
		}
	}

	if err := checkFireTime(def, ref, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

func slot(ref time.Time, offsetDays int, tod TimeOfDay) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d+offsetDays, tod.Hour, tod.Minute, 0, 0, ref.Location())
}

// checkFireTime asserts the result instead of trusting the derivation.
func checkFireTime(def Definition, ref, next time.Time) error {
	if !next.After(ref) {
		return fmt.Errorf("%w: %s is not after %s", ErrScheduleInvariant, next, ref)
	}

	window := 1
	if def.Frequency == FrequencyWeekly {
		window = 7
	}
	if limit := ref.AddDate(0, 0, window); next.After(limit) {
		return fmt.Errorf("%w: %s is beyond %s", ErrScheduleInvariant, next, limit)
	}

	if def.Frequency == FrequencyWeekly && !def.Days.Contains(next.Weekday()) {
		return fmt.Errorf("%w: %s falls on %s, not in %s", ErrScheduleInvariant, next, next.Weekday(), def.Days)
	}
	return nil
}
