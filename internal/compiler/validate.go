package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/cfgfuzz/internal/ir"
)

// Grammar error codes (E200-E299)
const (
	ErrUnknownReference     = "E201" // reference to an undefined, non-builtin rule
	ErrUnsupportedLookahead = "E202" // negative lookahead operand cannot be compiled
	ErrInvalidStart         = "E203" // start rule empty or undefined
	ErrInvalidRange         = "E204" // range bounds inverted or not valid characters
	ErrInvalidRepetition    = "E205" // repetition bounds negative, inverted or too large
	ErrDuplicateRule        = "E206" // rule declared twice
	ErrMalformedGrammar     = "E207" // CUE grammar does not match the expected shape
)

// ValidationError represents a grammar validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a grammar spec before compilation.
// Returns all errors found (does not fail-fast).
func Validate(spec *ir.GrammarSpec) []ValidationError {
	var errs []ValidationError

	rules := make(map[string]ir.Rule, len(spec.Rules))
	for i, r := range spec.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, ValidationError{Field: field, Message: "rule name is required", Code: ErrMalformedGrammar})
			continue
		}
		if _, dup := rules[r.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate rule %q", r.Name),
				Code:    ErrDuplicateRule,
			})
			continue
		}
		rules[r.Name] = r
	}

	switch {
	case strings.TrimSpace(spec.Start) == "":
		errs = append(errs, ValidationError{Field: "start", Message: "start rule is required", Code: ErrInvalidStart})
	case !defined(spec.Start, rules):
		msg := fmt.Sprintf("start rule %q is not defined", spec.Start)
		if IsBuiltin(spec.Start) {
			msg = fmt.Sprintf("start rule %q is a builtin terminal and has no productions", spec.Start)
		}
		errs = append(errs, ValidationError{Field: "start", Message: msg, Code: ErrInvalidStart})
	}

	for _, r := range spec.Rules {
		if r.Expr == nil {
			errs = append(errs, ValidationError{Field: "rules." + r.Name, Message: "rule has no expression", Code: ErrMalformedGrammar})
			continue
		}
		errs = append(errs, validateExpr(r.Expr, "rules."+r.Name, rules)...)
	}
	return errs
}

// MaxRepetitionBound caps the explicit bounds of a repetition. The raw
// encoding allocates one symbol per bound unit.
const MaxRepetitionBound = 4096

func badRepetition(e *ir.Rep) bool {
	if e.Min < 0 || e.Min > MaxRepetitionBound {
		return true
	}
	if e.Max == ir.Unbounded {
		return false
	}
	return e.Max < e.Min || e.Max > MaxRepetitionBound
}

func defined(name string, rules map[string]ir.Rule) bool {
	_, ok := rules[name]
	return ok
}

func definedOrBuiltin(name string, rules map[string]ir.Rule) bool {
	return defined(name, rules) || IsBuiltin(name)
}

func validateExpr(e ir.Expr, field string, rules map[string]ir.Rule) []ValidationError {
	var errs []ValidationError
	switch e := e.(type) {
	case *ir.Ident:
		if !definedOrBuiltin(e.Name, rules) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("reference to undefined rule %q", e.Name),
				Code:    ErrUnknownReference,
			})
		}
	case *ir.Range:
		if e.Lo > e.Hi || !utf8.ValidRune(e.Lo) || !utf8.ValidRune(e.Hi) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid range %s", e),
				Code:    ErrInvalidRange,
			})
		}
	case *ir.Seq:
		errs = append(errs, validateExpr(e.Left, field, rules)...)
		errs = append(errs, validateExpr(e.Right, field, rules)...)
	case *ir.Choice:
		errs = append(errs, validateExpr(e.Left, field, rules)...)
		errs = append(errs, validateExpr(e.Right, field, rules)...)
	case *ir.Opt:
		errs = append(errs, validateExpr(e.Inner, field, rules)...)
	case *ir.Rep:
		if badRepetition(e) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid repetition bounds {%d,%d}", e.Min, e.Max),
				Code:    ErrInvalidRepetition,
			})
		}
		errs = append(errs, validateExpr(e.Inner, field, rules)...)
	case *ir.PosPred:
		errs = append(errs, validateExpr(e.Inner, field, rules)...)
	case *ir.NegPred:
		if _, ok := forbiddenStrings(e.Inner, rules, 0); !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unsupported negative lookahead %s", e),
				Code:    ErrUnsupportedLookahead,
			})
		}
	case nil:
		errs = append(errs, ValidationError{Field: field, Message: "missing expression", Code: ErrMalformedGrammar})
	}
	return errs
}

const maxLookaheadDepth = 16

// forbiddenStrings resolves the operand of a negative lookahead into the set
// of strings it rejects. Supported operands are literals, the builtin ASCII
// classes, choices of supported operands and references to rules that are
// themselves supported operands.
func forbiddenStrings(e ir.Expr, rules map[string]ir.Rule, depth int) ([]string, bool) {
	if depth > maxLookaheadDepth {
		return nil, false
	}
	switch e := e.(type) {
	case *ir.Str:
		if e.Value == "" {
			return nil, false
		}
		return []string{e.Value}, true
	case *ir.Ident:
		if class, ok := lookaheadClasses[e.Name]; ok {
			if _, shadowed := rules[e.Name]; !shadowed {
				out := make([]string, 0, len(class))
				for _, r := range class {
					out = append(out, string(r))
				}
				return out, true
			}
		}
		r, ok := rules[e.Name]
		if !ok || r.Expr == nil {
			return nil, false
		}
		return forbiddenStrings(r.Expr, rules, depth+1)
	case *ir.Choice:
		left, ok := forbiddenStrings(e.Left, rules, depth+1)
		if !ok {
			return nil, false
		}
		right, ok := forbiddenStrings(e.Right, rules, depth+1)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	}
	return nil, false
}
