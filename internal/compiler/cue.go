package compiler

import (
	"fmt"
	"os"
	"unicode/utf8"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cfgfuzz/internal/ir"
)

// LoadGrammars parses every grammar under the top-level "grammar" field of v,
// in declaration order.
func LoadGrammars(v cue.Value) ([]ir.GrammarSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	gv := v.LookupPath(cue.ParsePath("grammar"))
	if !gv.Exists() {
		return nil, nil
	}
	iter, err := gv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []ir.GrammarSpec
	for iter.Next() {
		spec, err := LoadGrammar(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// LoadFile compiles one standalone CUE file and parses its grammars.
func LoadFile(path string) ([]ir.GrammarSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grammar file: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	return LoadGrammars(v)
}

// LoadGrammar parses a CUE value into a GrammarSpec.
//
// The value should be the grammar struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`grammar: calc: { start: "expr", rules: {...} }`)
//	spec, err := LoadGrammar(v.LookupPath(cue.ParsePath("grammar.calc")))
func LoadGrammar(v cue.Value) (*ir.GrammarSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.GrammarSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	if sv := v.LookupPath(cue.ParsePath("start")); sv.Exists() {
		start, err := sv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Start = start
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Code:    ErrMalformedGrammar,
			Field:   "rules",
			Message: "rules are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := parseRule(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Rules = append(spec.Rules, rule)
	}
	return spec, nil
}

// parseRule accepts either {type?: string, expr: <expr>} or a bare
// expression, which is a normal rule.
func parseRule(name string, v cue.Value) (ir.Rule, error) {
	rule := ir.Rule{Name: name}
	field := "rules." + name

	exprVal := v
	if v.IncompleteKind() == cue.StructKind {
		if ev := v.LookupPath(cue.ParsePath("expr")); ev.Exists() {
			exprVal = ev
			if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
				s, err := tv.String()
				if err != nil {
					return rule, formatCUEError(err)
				}
				t, ok := ir.ParseRuleType(s)
				if !ok {
					return rule, &CompileError{
						Code:    ErrMalformedGrammar,
						Field:   field + ".type",
						Message: fmt.Sprintf("unknown rule type %q", s),
						Pos:     tv.Pos(),
					}
				}
				rule.Type = t
			}
		}
	}

	expr, err := parseExpr(exprVal, field)
	if err != nil {
		return rule, err
	}
	rule.Expr = expr
	return rule, nil
}

var exprOps = []string{"str", "insens", "range", "ref", "seq", "choice", "opt", "rep", "plus", "pos", "neg", "weight"}

// parseExpr decodes one expression. A bare string is a literal; a struct
// carries exactly one operator key.
func parseExpr(v cue.Value, field string) (ir.Expr, error) {
	if v.IncompleteKind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.S(s), nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, malformed(v, field, fmt.Sprintf("expression must be a string or struct, got %v", v.IncompleteKind()))
	}

	var op string
	for _, k := range exprOps {
		if v.LookupPath(cue.ParsePath(k)).Exists() {
			if op != "" {
				return nil, malformed(v, field, fmt.Sprintf("expression has both %q and %q", op, k))
			}
			op = k
		}
	}
	if op == "" {
		return nil, malformed(v, field, "expression has no operator")
	}
	arg := v.LookupPath(cue.ParsePath(op))
	field = field + "." + op

	switch op {
	case "str", "insens", "ref":
		s, err := arg.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch op {
		case "str":
			return ir.S(s), nil
		case "insens":
			return &ir.Insens{Value: s}, nil
		}
		return ir.I(s), nil

	case "range":
		bounds, err := parseStrings(arg)
		if err != nil {
			return nil, err
		}
		if len(bounds) != 2 || utf8.RuneCountInString(bounds[0]) != 1 || utf8.RuneCountInString(bounds[1]) != 1 {
			return nil, malformed(arg, field, "range must be two single characters")
		}
		lo, _ := utf8.DecodeRuneInString(bounds[0])
		hi, _ := utf8.DecodeRuneInString(bounds[1])
		return ir.R(lo, hi), nil

	case "seq":
		items, err := parseExprList(arg, field)
		if err != nil {
			return nil, err
		}
		return ir.SeqOf(items...), nil

	case "choice":
		items, err := parseExprList(arg, field)
		if err != nil {
			return nil, err
		}
		wv := v.LookupPath(cue.ParsePath("weights"))
		if !wv.Exists() {
			return ir.ChoiceOf(items...), nil
		}
		weights, err := parseWeights(wv, len(items), field)
		if err != nil {
			return nil, err
		}
		return weightedChoice(items, weights), nil

	case "opt", "plus", "pos", "neg":
		inner, err := parseExpr(arg, field)
		if err != nil {
			return nil, err
		}
		switch op {
		case "opt":
			return ir.Optional(inner), nil
		case "plus":
			return ir.Plus(inner), nil
		case "pos":
			return &ir.PosPred{Inner: inner}, nil
		}
		return &ir.NegPred{Inner: inner}, nil

	case "rep":
		inner, err := parseExpr(arg, field)
		if err != nil {
			return nil, err
		}
		rep := ir.Star(inner)
		if mv := v.LookupPath(cue.ParsePath("min")); mv.Exists() {
			n, err := mv.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			rep.Min = int(n)
		}
		if mv := v.LookupPath(cue.ParsePath("max")); mv.Exists() {
			n, err := mv.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			rep.Max = int(n)
		}
		return rep, nil
	}

	// weight
	return &ir.Weight{}, nil
}

func parseExprList(v cue.Value, field string) ([]ir.Expr, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Expr
	for i := 0; iter.Next(); i++ {
		e, err := parseExpr(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, malformed(v, field, "list must not be empty")
	}
	return out, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseWeights(v cue.Value, n int, field string) ([]uint32, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []uint32
	var total uint64
	for iter.Next() {
		w, err := iter.Value().Uint64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if w > 1<<31 {
			return nil, malformed(iter.Value(), field+".weights", fmt.Sprintf("weight %d too large", w))
		}
		out = append(out, uint32(w))
		total += w
	}
	if len(out) != n {
		return nil, malformed(v, field+".weights", fmt.Sprintf("got %d weights for %d alternatives", len(out), n))
	}
	if total == 0 || total > 1<<31 {
		return nil, malformed(v, field+".weights", "weights must sum to a positive value below 2^31")
	}
	return out, nil
}

// weightedChoice folds alternatives into right-nested binary choices whose
// right weight is the sum of the remaining alternatives.
func weightedChoice(items []ir.Expr, weights []uint32) ir.Expr {
	if len(items) == 1 {
		return items[0]
	}
	var rest uint32
	for _, w := range weights[1:] {
		rest += w
	}
	return &ir.Choice{
		Left:        items[0],
		Right:       weightedChoice(items[1:], weights[1:]),
		LeftWeight:  weights[0],
		RightWeight: rest,
	}
}

func malformed(v cue.Value, field, msg string) *CompileError {
	return &CompileError{Code: ErrMalformedGrammar, Field: field, Message: msg, Pos: v.Pos()}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: ErrMalformedGrammar, Field: "cue", Message: err.Error()}
	}

	firstErr := errs[0]
	ce := &CompileError{
		Code:    ErrMalformedGrammar,
		Field:   "cue",
		Message: firstErr.Error(),
	}
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
