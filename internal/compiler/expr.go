package compiler

import (
	"fmt"

	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"

	"github.com/roach88/cfgfuzz/internal/grammar"
	"github.com/roach88/cfgfuzz/internal/ir"
)

// ruleCompiler translates the expression tree of one rule.
type ruleCompiler struct {
	c      *compilation
	rule   ir.Rule
	splice bool
}

// expr returns the symbols e contributes to the enclosing production.
func (rc *ruleCompiler) expr(e ir.Expr) ([]grammar.Symbol, error) {
	c := rc.c
	switch e := e.(type) {
	case *ir.Str:
		return rc.literal(e.Value), nil

	case *ir.Insens:
		if !c.opts.caseFolding {
			return rc.literal(e.Value), nil
		}
		var out []grammar.Symbol
		for _, r := range e.Value {
			syms, err := rc.folded(r)
			if err != nil {
				return nil, err
			}
			out = append(out, syms...)
		}
		return out, nil

	case *ir.Range:
		return []grammar.Symbol{c.tab.InternCharRange(e.Lo, e.Hi)}, nil

	case *ir.Ident:
		return []grammar.Symbol{c.tab.InternNonterminal(e.Name)}, nil

	case *ir.Seq:
		left, err := rc.expr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := rc.expr(e.Right)
		if err != nil {
			return nil, err
		}
		out := left
		if rc.splice {
			out = append(out, c.whitespace)
		}
		return append(out, right...), nil

	case *ir.Choice:
		n := c.tab.Fresh(rc.rule.Name)
		if err := rc.alternatives(n, e); err != nil {
			return nil, err
		}
		return []grammar.Symbol{n}, nil

	case *ir.Opt:
		inner, err := rc.expr(e.Inner)
		if err != nil {
			return nil, err
		}
		n := c.tab.Fresh(rc.rule.Name)
		if err := c.g.AddProduction(n, inner, 0); err != nil {
			return nil, err
		}
		if err := c.g.AddProduction(n, nil, 0); err != nil {
			return nil, err
		}
		return []grammar.Symbol{n}, nil

	case *ir.Rep:
		return rc.repetition(e)

	case *ir.PosPred, *ir.Weight:
		return nil, nil

	case *ir.NegPred:
		forbidden, ok := forbiddenStrings(e.Inner, c.rules, 0)
		if !ok {
			return nil, &CompileError{
				Code:    ErrUnsupportedLookahead,
				Field:   "rules." + rc.rule.Name,
				Message: fmt.Sprintf("unsupported negative lookahead %s", e),
			}
		}
		marker := c.tab.Fresh(rc.rule.Name + "!")
		if err := c.g.AddProduction(marker, nil, 0); err != nil {
			return nil, err
		}
		if err := c.cs.Register(marker, forbidden); err != nil {
			return nil, err
		}
		return []grammar.Symbol{marker}, nil
	}
	return nil, &CompileError{
		Code:    ErrMalformedGrammar,
		Field:   "rules." + rc.rule.Name,
		Message: fmt.Sprintf("unsupported expression %T", e),
	}
}

func (rc *ruleCompiler) literal(s string) []grammar.Symbol {
	out := make([]grammar.Symbol, 0, len(s))
	for _, r := range s {
		out = append(out, rc.c.tab.InternCharRange(r, r))
	}
	return out
}

// folded returns the symbols for one character of a case-insensitive literal.
// Cased letters become a shared two-way nonterminal.
func (rc *ruleCompiler) folded(r rune) ([]grammar.Symbol, error) {
	c := rc.c
	if s, ok := c.folded[r]; ok {
		return []grammar.Symbol{s}, nil
	}
	lower := cases.Lower(textlang.Und).String(string(r))
	upper := cases.Upper(textlang.Und).String(string(r))
	if lower == upper {
		return rc.literal(string(r)), nil
	}
	n := c.tab.Fresh("fold")
	for _, variant := range []string{lower, upper} {
		if err := c.g.AddProduction(n, rc.literal(variant), 0); err != nil {
			return nil, fmt.Errorf("fold %q: %w", r, err)
		}
	}
	c.folded[r] = n
	return []grammar.Symbol{n}, nil
}

// alternatives adds one production per alternative of ch to lhs.
// Unweighted right-nested choices are flattened.
func (rc *ruleCompiler) alternatives(lhs grammar.Symbol, ch *ir.Choice) error {
	type alt struct {
		expr   ir.Expr
		weight uint32
	}
	var alts []alt
	if ch.Weighted() {
		alts = []alt{{ch.Left, ch.LeftWeight}, {ch.Right, ch.RightWeight}}
	} else {
		var node ir.Expr = ch
		for {
			cur, ok := node.(*ir.Choice)
			if !ok || cur.Weighted() {
				alts = append(alts, alt{expr: node})
				break
			}
			alts = append(alts, alt{expr: cur.Left})
			node = cur.Right
		}
	}

	for _, a := range alts {
		rhs, err := rc.expr(a.expr)
		if err != nil {
			return err
		}
		if err := rc.c.g.AddProduction(lhs, rhs, a.weight); err != nil {
			return err
		}
	}
	return nil
}

// repetition emits R -> X^min T where T is the right-recursive tail
// T -> ε | X T, or for a bounded repetition the chain T_j -> ε | X T_(j-1)
// ending in T_0 -> ε. The bounds are also recorded so the normalizer can
// replace R with a native sequence.
func (rc *ruleCompiler) repetition(e *ir.Rep) ([]grammar.Symbol, error) {
	c := rc.c
	if badRepetition(e) {
		return nil, &CompileError{
			Code:    ErrInvalidRepetition,
			Field:   "rules." + rc.rule.Name,
			Message: fmt.Sprintf("invalid repetition bounds {%d,%d}", e.Min, e.Max),
		}
	}

	inner, err := rc.expr(e.Inner)
	if err != nil {
		return nil, err
	}
	var x grammar.Symbol
	if len(inner) == 1 {
		x = inner[0]
	} else {
		x = c.tab.Fresh(rc.rule.Name)
		if err := c.g.AddProduction(x, inner, 0); err != nil {
			return nil, err
		}
	}

	r := c.tab.Fresh(rc.rule.Name)
	rhs := make([]grammar.Symbol, 0, e.Min+1)
	for i := 0; i < e.Min; i++ {
		rhs = append(rhs, x)
	}

	switch {
	case e.Max == ir.Unbounded:
		t := c.tab.Fresh(rc.rule.Name)
		if err := rc.tail(t, x, []grammar.Symbol{t}); err != nil {
			return nil, err
		}
		rhs = append(rhs, t)
	case e.Max > e.Min:
		// T_1 -> ε | X stands in for T_1 -> ε | X T_0.
		var next []grammar.Symbol
		for j := 1; j <= e.Max-e.Min; j++ {
			t := c.tab.Fresh(rc.rule.Name)
			if err := rc.tail(t, x, next); err != nil {
				return nil, err
			}
			next = []grammar.Symbol{t}
		}
		rhs = append(rhs, next...)
	}

	if err := c.g.AddProduction(r, rhs, 0); err != nil {
		return nil, err
	}
	if err := c.g.AddRepetition(grammar.Sequence{LHS: r, Elem: x, Min: e.Min, Max: e.Max}); err != nil {
		return nil, err
	}
	return []grammar.Symbol{r}, nil
}

// tail adds t -> ε | x next.
func (rc *ruleCompiler) tail(t, x grammar.Symbol, next []grammar.Symbol) error {
	if err := rc.c.g.AddProduction(t, nil, 0); err != nil {
		return err
	}
	return rc.c.g.AddProduction(t, append([]grammar.Symbol{x}, next...), 0)
}
