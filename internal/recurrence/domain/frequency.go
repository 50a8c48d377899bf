package domain

import (
	"fmt"
	"strings"
)

// Frequency is how often a rule fires.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// IsValid checks if the frequency is known.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// ParseFrequency accepts "daily" or "weekly" in any case.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
	return f, nil
}
