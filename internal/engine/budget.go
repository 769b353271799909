package engine

import (
	"errors"
	"fmt"
)

// StepQuota counts expanded frames in one derivation and enforces a maximum.
//
// The size ceiling bounds output, not work: a derivation that loops through
// null-only expansions, or runs without a ceiling, emits nothing while it
// spins. The quota is what guarantees such a derivation terminates.
type StepQuota struct {
	maxSteps int
	current  int
}

// NewStepQuota creates a quota with the given limit. A limit <= 0 disables it.
func NewStepQuota(maxSteps int) *StepQuota {
	return &StepQuota{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
func (q *StepQuota) Check() error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{Steps: q.current, Limit: q.maxSteps}
	}
	return nil
}

// Current returns the current step count.
func (q *StepQuota) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *StepQuota) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a derivation exceeds its step quota.
type StepsExceededError struct {
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("derivation exceeded max steps quota: %d steps > %d limit", e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
