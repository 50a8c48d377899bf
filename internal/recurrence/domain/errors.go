package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRule marks a malformed recurrence definition. Every more specific
// validation error below wraps it.
var ErrInvalidRule = errors.New("invalid recurrence rule")

var (
	ErrEmptyWeekdays     = fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
	ErrInvalidWeekday    = fmt.Errorf("%w: weekday must be between 0 (Sunday) and 6 (Saturday)", ErrInvalidRule)
	ErrInvalidTimeOfDay  = fmt.Errorf("%w: malformed time of day", ErrInvalidRule)
	ErrUnknownFrequency  = fmt.Errorf("%w: unknown frequency", ErrInvalidRule)
	ErrEmptyTitle        = fmt.Errorf("%w: title cannot be empty", ErrInvalidRule)
	ErrScheduleInvariant = errors.New("computed fire time violates schedule invariant")
)

var (
	ErrRuleNotFound = errors.New("recurrence rule not found")
	ErrRuleNotOwner = errors.New("recurrence rule belongs to another user")
	ErrRuleConflict = errors.New("recurrence rule was modified concurrently")
)
