package harness

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/cfgfuzz/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Case     string       // Case the assertion failed on
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Cases    []CaseResult // All case results for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Case != "" {
		fmt.Fprintf(&buf, " (case %s)", e.Case)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nAll cases:\n")
	for i, c := range e.Cases {
		fmt.Fprintf(&buf, "  [%d] %s entropy=%q status=%s output=%q\n", i+1, c.Name, c.Entropy, c.Status, c.Output)
	}

	return buf.String()
}

// selectCases returns the cases an assertion applies to.
func selectCases(cases []CaseResult, a Assertion) ([]CaseResult, error) {
	if a.Case == "" {
		return cases, nil
	}
	for _, c := range cases {
		if c.Name == a.Case {
			return []CaseResult{c}, nil
		}
	}
	return nil, fmt.Errorf("%s: unknown case %q", a.Type, a.Case)
}

func assertOutputEquals(cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		if c.Status != store.StatusOK {
			return &AssertionError{
				Type:     AssertOutputEquals,
				Case:     c.Name,
				Expected: fmt.Sprintf("output %q", a.Value),
				Actual:   fmt.Sprintf("generation failed with %s", c.Status),
				Cases:    cases,
			}
		}
		if c.Output != a.Value {
			return &AssertionError{
				Type:     AssertOutputEquals,
				Case:     c.Name,
				Expected: fmt.Sprintf("output %q", a.Value),
				Actual:   fmt.Sprintf("output %q", c.Output),
				Cases:    cases,
			}
		}
	}
	return nil
}

func assertOutputContains(cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		if !strings.Contains(c.Output, a.Value) {
			return &AssertionError{
				Type:     AssertOutputContains,
				Case:     c.Name,
				Expected: fmt.Sprintf("output containing %q", a.Value),
				Actual:   fmt.Sprintf("output %q", c.Output),
				Cases:    cases,
			}
		}
	}
	return nil
}

// assertOutputNotContains applies to every case when no case is named, which
// is how scenarios pin negative-constraint behavior.
func assertOutputNotContains(cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		if strings.Contains(c.Output, a.Value) {
			return &AssertionError{
				Type:     AssertOutputNotContains,
				Case:     c.Name,
				Expected: fmt.Sprintf("output without %q", a.Value),
				Actual:   fmt.Sprintf("output %q", c.Output),
				Cases:    cases,
			}
		}
	}
	return nil
}

func assertErrorCode(cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		if c.Status != a.Code {
			return &AssertionError{
				Type:     AssertErrorCode,
				Case:     c.Name,
				Expected: fmt.Sprintf("status %s", a.Code),
				Actual:   fmt.Sprintf("status %s", c.Status),
				Cases:    cases,
			}
		}
	}
	return nil
}

// assertMaxLength counts characters, matching the engine's size ceiling.
func assertMaxLength(cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		if n := utf8.RuneCountInString(c.Output); n > a.Length {
			return &AssertionError{
				Type:     AssertMaxLength,
				Case:     c.Name,
				Expected: fmt.Sprintf("at most %d characters", a.Length),
				Actual:   fmt.Sprintf("%d characters", n),
				Cases:    cases,
			}
		}
	}
	return nil
}

// assertDeterministic re-derives each case and compares.
func assertDeterministic(cases []CaseResult, a Assertion, regenerate func(CaseResult) (CaseResult, error)) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		again, err := regenerate(c)
		if err != nil {
			return fmt.Errorf("%s: case %s: %w", AssertDeterministic, c.Name, err)
		}
		if again.Output != c.Output || again.Status != c.Status || again.Consumed != c.Consumed {
			return &AssertionError{
				Type:     AssertDeterministic,
				Case:     c.Name,
				Expected: fmt.Sprintf("status %s output %q consumed %d", c.Status, c.Output, c.Consumed),
				Actual:   fmt.Sprintf("status %s output %q consumed %d", again.Status, again.Output, again.Consumed),
				Cases:    cases,
			}
		}
	}
	return nil
}

// assertStored checks that each case's entry was persisted as derived.
func assertStored(ctx context.Context, st *store.Store, cases []CaseResult, a Assertion) error {
	selected, err := selectCases(cases, a)
	if err != nil {
		return err
	}
	for _, c := range selected {
		entry, err := st.ReadEntry(ctx, c.EntryID)
		if err != nil {
			return &AssertionError{
				Type:     AssertStored,
				Case:     c.Name,
				Expected: fmt.Sprintf("entry %s in store", c.EntryID),
				Actual:   err.Error(),
				Cases:    cases,
			}
		}
		if entry.Output != c.Output || entry.Status != c.Status || entry.Consumed != int64(c.Consumed) {
			return &AssertionError{
				Type:     AssertStored,
				Case:     c.Name,
				Expected: fmt.Sprintf("status %s output %q consumed %d", c.Status, c.Output, c.Consumed),
				Actual:   fmt.Sprintf("status %s output %q consumed %d", entry.Status, entry.Output, entry.Consumed),
				Cases:    cases,
			}
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	// Regenerate re-derives a case; required by deterministic assertions.
	Regenerate func(CaseResult) (CaseResult, error)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for stored assertions and the
// engine for deterministic ones.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutputEquals:
			err = assertOutputEquals(result.Cases, assertion)
		case AssertOutputContains:
			err = assertOutputContains(result.Cases, assertion)
		case AssertOutputNotContains:
			err = assertOutputNotContains(result.Cases, assertion)
		case AssertErrorCode:
			err = assertErrorCode(result.Cases, assertion)
		case AssertMaxLength:
			err = assertMaxLength(result.Cases, assertion)
		case AssertDeterministic:
			if actx == nil || actx.Regenerate == nil {
				err = fmt.Errorf("assertion[%d]: deterministic requires an engine", i)
			} else {
				err = assertDeterministic(result.Cases, assertion, actx.Regenerate)
			}
		case AssertStored:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: stored requires database context", i)
			} else {
				err = assertStored(actx.Ctx, actx.Store, result.Cases, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
