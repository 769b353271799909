package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a sealed interface for grammar expression nodes.
// Only the node types declared in this file implement it, so compilers can
// switch exhaustively:
//
//	switch e := expr.(type) {
//	case *Str, *Insens:
//	    // literal
//	case *Seq:
//	    // concatenation
//	...
//	}
type Expr interface {
	exprNode()
	String() string
}

// Str matches an exact string, e.g. "a".
type Str struct {
	Value string
}

// Insens matches a string case-insensitively (ASCII only), e.g. ^"a".
type Insens struct {
	Value string
}

// Range matches one character in the inclusive range, e.g. 'a'..'z'.
type Range struct {
	Lo rune
	Hi rune
}

// Ident references another rule by name.
type Ident struct {
	Name string
}

// Seq matches Left followed by Right.
type Seq struct {
	Left  Expr
	Right Expr
}

// Choice matches Left or Right, in that order of preference.
// Weights are relative selection widths; both zero means unweighted.
type Choice struct {
	Left        Expr
	Right       Expr
	LeftWeight  uint32
	RightWeight uint32
}

// Weighted reports whether either alternative carries an explicit weight.
func (c *Choice) Weighted() bool {
	return c.LeftWeight != 0 || c.RightWeight != 0
}

// Opt matches Inner zero or one time.
type Opt struct {
	Inner Expr
}

// Unbounded is the Rep.Max value for repetitions without an upper bound.
const Unbounded = -1

// Rep matches Inner between Min and Max times (Max == Unbounded for no limit).
type Rep struct {
	Inner Expr
	Min   int
	Max   int
}

// PosPred is a positive lookahead, e.g. &e.
type PosPred struct {
	Inner Expr
}

// NegPred is a negative lookahead, e.g. !e.
type NegPred struct {
	Inner Expr
}

// Weight is a bookkeeping marker that matches nothing.
type Weight struct{}

func (*Str) exprNode()     {}
func (*Insens) exprNode()  {}
func (*Range) exprNode()   {}
func (*Ident) exprNode()   {}
func (*Seq) exprNode()     {}
func (*Choice) exprNode()  {}
func (*Opt) exprNode()     {}
func (*Rep) exprNode()     {}
func (*PosPred) exprNode() {}
func (*NegPred) exprNode() {}
func (*Weight) exprNode()  {}

func (e *Str) String() string    { return strconv.Quote(e.Value) }
func (e *Insens) String() string { return "^" + strconv.Quote(e.Value) }
func (e *Range) String() string  { return strconv.QuoteRune(e.Lo) + ".." + strconv.QuoteRune(e.Hi) }
func (e *Ident) String() string  { return e.Name }
func (e *Seq) String() string    { return "(" + e.Left.String() + " ~ " + e.Right.String() + ")" }
func (e *Opt) String() string    { return e.Inner.String() + "?" }
func (e *PosPred) String() string {
	return "&" + e.Inner.String()
}
func (e *NegPred) String() string {
	return "!" + e.Inner.String()
}
func (e *Weight) String() string { return "#weight" }

func (e *Choice) String() string {
	if !e.Weighted() {
		return "(" + e.Left.String() + " | " + e.Right.String() + ")"
	}
	return fmt.Sprintf("(%s @%d | %s @%d)", e.Left, e.LeftWeight, e.Right, e.RightWeight)
}

func (e *Rep) String() string {
	switch {
	case e.Min == 0 && e.Max == Unbounded:
		return e.Inner.String() + "*"
	case e.Min == 1 && e.Max == Unbounded:
		return e.Inner.String() + "+"
	case e.Max == Unbounded:
		return fmt.Sprintf("%s{%d,}", e.Inner, e.Min)
	default:
		return fmt.Sprintf("%s{%d,%d}", e.Inner, e.Min, e.Max)
	}
}

// S builds a literal.
func S(s string) *Str { return &Str{Value: s} }

// I builds a rule reference.
func I(name string) *Ident { return &Ident{Name: name} }

// R builds a character range.
func R(lo, hi rune) *Range { return &Range{Lo: lo, Hi: hi} }

// SeqOf folds exprs into right-nested sequences. A single expr is returned as is.
func SeqOf(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		panic("ir.SeqOf: no expressions")
	}
	out := exprs[len(exprs)-1]
	for i := len(exprs) - 2; i >= 0; i-- {
		out = &Seq{Left: exprs[i], Right: out}
	}
	return out
}

// ChoiceOf folds exprs into right-nested unweighted choices.
func ChoiceOf(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		panic("ir.ChoiceOf: no expressions")
	}
	out := exprs[len(exprs)-1]
	for i := len(exprs) - 2; i >= 0; i-- {
		out = &Choice{Left: exprs[i], Right: out}
	}
	return out
}

// Star is e*.
func Star(e Expr) *Rep { return &Rep{Inner: e, Min: 0, Max: Unbounded} }

// Plus is e+.
func Plus(e Expr) *Rep { return &Rep{Inner: e, Min: 1, Max: Unbounded} }

// Optional is e?.
func Optional(e Expr) *Opt { return &Opt{Inner: e} }

// RuleType is the atomicity tag of a rule.
type RuleType int

const (
	RuleNormal RuleType = iota
	RuleSilent
	RuleAtomic
	RuleCompoundAtomic
	RuleNonAtomic
)

var ruleTypeNames = map[RuleType]string{
	RuleNormal:         "normal",
	RuleSilent:         "silent",
	RuleAtomic:         "atomic",
	RuleCompoundAtomic: "compound_atomic",
	RuleNonAtomic:      "non_atomic",
}

func (t RuleType) String() string {
	if name, ok := ruleTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RuleType(%d)", int(t))
}

// ParseRuleType maps a textual atomicity tag to a RuleType.
// The empty string is RuleNormal.
func ParseRuleType(s string) (RuleType, bool) {
	if s == "" {
		return RuleNormal, true
	}
	for t, name := range ruleTypeNames {
		if name == strings.ToLower(s) {
			return t, true
		}
	}
	return RuleNormal, false
}

// SplicesWhitespace reports whether sequences in rules of this type get the
// implicit whitespace rule inserted between their sides.
func (t RuleType) SplicesWhitespace() bool {
	return t != RuleAtomic && t != RuleCompoundAtomic
}

// Rule is a named grammar rule.
type Rule struct {
	Name string
	Type RuleType
	Expr Expr
}

// GrammarSpec is an ordered sequence of rules plus the default start rule.
type GrammarSpec struct {
	Name  string
	Start string
	Rules []Rule
}

// Rule returns the rule with the given name.
func (g *GrammarSpec) Rule(name string) (Rule, bool) {
	for _, r := range g.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
