package engine

import (
	"errors"
	"fmt"
)

// GenError represents a derivation that could not produce a string.
//
// Generation errors are recoverable: the caller discards the entropy input
// and tries another. They are never program faults.
type GenError struct {
	// Code identifies the error category.
	Code GenErrorCode

	// Message is a human-readable description.
	Message string

	// Rule is the start rule of the derivation.
	Rule string

	// Details contains additional context.
	Details map[string]string
}

// GenErrorCode categorizes generation errors.
type GenErrorCode string

const (
	// ErrCodeSizeLimit indicates the output reached the size ceiling before
	// the derivation finished.
	ErrCodeSizeLimit GenErrorCode = "SIZE_LIMIT_EXCEEDED"

	// ErrCodeConstraintUnsatisfiable indicates a negative constraint kept
	// colliding after every retry and the zero-entropy fallback.
	ErrCodeConstraintUnsatisfiable GenErrorCode = "NEGATIVE_CONSTRAINT_UNSATISFIABLE"

	// ErrCodeStepLimit indicates the derivation exceeded the step quota.
	ErrCodeStepLimit GenErrorCode = "STEP_LIMIT_EXCEEDED"
)

// Error implements the error interface.
func (e *GenError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsSizeLimitError returns true if the error is a size ceiling error.
// Uses errors.As to handle wrapped errors.
func IsSizeLimitError(err error) bool {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeSizeLimit
	}
	return false
}

// IsConstraintError returns true if the error is an unsatisfiable negative
// constraint.
func IsConstraintError(err error) bool {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeConstraintUnsatisfiable
	}
	return false
}

// IsStepLimitError returns true if the error is a step quota error.
// Matches both GenError with ErrCodeStepLimit and StepsExceededError.
func IsStepLimitError(err error) bool {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeStepLimit
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// CodeOf returns the code of a GenError, or "" for any other error.
func CodeOf(err error) GenErrorCode {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// NewSizeLimitError creates a GenError for an exceeded ceiling.
func NewSizeLimitError(rule string, ceiling int) *GenError {
	return &GenError{
		Code:    ErrCodeSizeLimit,
		Message: fmt.Sprintf("output reached size ceiling %d", ceiling),
		Rule:    rule,
		Details: map[string]string{"ceiling": fmt.Sprintf("%d", ceiling)},
	}
}

// NewConstraintError creates a GenError for an unsatisfiable constraint.
func NewConstraintError(rule, forbidden string, retries int) *GenError {
	return &GenError{
		Code:    ErrCodeConstraintUnsatisfiable,
		Message: fmt.Sprintf("text after marker still starts with %q after %d retries", forbidden, retries),
		Rule:    rule,
		Details: map[string]string{
			"forbidden": forbidden,
			"retries":   fmt.Sprintf("%d", retries),
		},
	}
}

// NewStepLimitError wraps a StepsExceededError as a GenError.
func NewStepLimitError(rule string, se *StepsExceededError) *GenError {
	return &GenError{
		Code:    ErrCodeStepLimit,
		Message: se.Error(),
		Rule:    rule,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", se.Steps),
			"max_steps": fmt.Sprintf("%d", se.Limit),
		},
	}
}

// NewDepthLimitError creates a GenError for a work stack that outgrew its
// limit. It shares the step-limit code: both bound the work of a derivation.
func NewDepthLimitError(rule string, depth, limit int) *GenError {
	return &GenError{
		Code:    ErrCodeStepLimit,
		Message: fmt.Sprintf("derivation exceeded max depth: %d frames > %d limit", depth, limit),
		Rule:    rule,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", limit),
		},
	}
}

// UnknownRuleError is returned when Generate is asked for a rule the grammar
// does not define. It is a caller error, not a GenError.
type UnknownRuleError struct {
	Name string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("unknown start rule %q", e.Name)
}

// IsUnknownRuleError returns true if the error is an UnknownRuleError.
func IsUnknownRuleError(err error) bool {
	var ue *UnknownRuleError
	return errors.As(err, &ue)
}
