package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprString(t *testing.T) {
	e := SeqOf(S("x"), Star(ChoiceOf(S("y"), S("z"))))
	assert.Equal(t, `("x" ~ ("y" | "z")*)`, e.String())

	assert.Equal(t, `'a'..'z'`, R('a', 'z').String())
	assert.Equal(t, `^"select"`, (&Insens{Value: "select"}).String())
	assert.Equal(t, `!"foo"`, (&NegPred{Inner: S("foo")}).String())
	assert.Equal(t, `x{2,5}`, (&Rep{Inner: I("x"), Min: 2, Max: 5}).String())
	assert.Equal(t, `x{3,}`, (&Rep{Inner: I("x"), Min: 3, Max: Unbounded}).String())
	assert.Equal(t, `x+`, Plus(I("x")).String())
	assert.Equal(t, `("a" @3 | "b" @1)`, (&Choice{Left: S("a"), Right: S("b"), LeftWeight: 3, RightWeight: 1}).String())
}

func TestSeqOfNestsRight(t *testing.T) {
	e := SeqOf(S("a"), S("b"), S("c"))
	seq, ok := e.(*Seq)
	require.True(t, ok)
	assert.Equal(t, "a", seq.Left.(*Str).Value)

	inner, ok := seq.Right.(*Seq)
	require.True(t, ok)
	assert.Equal(t, "b", inner.Left.(*Str).Value)
	assert.Equal(t, "c", inner.Right.(*Str).Value)

	assert.Same(t, e, SeqOf(e))
}

func TestChoiceWeighted(t *testing.T) {
	assert.False(t, (&Choice{Left: S("a"), Right: S("b")}).Weighted())
	assert.True(t, (&Choice{Left: S("a"), Right: S("b"), RightWeight: 2}).Weighted())
}

func TestParseRuleType(t *testing.T) {
	tests := []struct {
		in   string
		want RuleType
		ok   bool
	}{
		{"", RuleNormal, true},
		{"normal", RuleNormal, true},
		{"silent", RuleSilent, true},
		{"atomic", RuleAtomic, true},
		{"Compound_Atomic", RuleCompoundAtomic, true},
		{"non_atomic", RuleNonAtomic, true},
		{"bogus", RuleNormal, false},
	}
	for _, tt := range tests {
		got, ok := ParseRuleType(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSplicesWhitespace(t *testing.T) {
	assert.True(t, RuleNormal.SplicesWhitespace())
	assert.True(t, RuleSilent.SplicesWhitespace())
	assert.True(t, RuleNonAtomic.SplicesWhitespace())
	assert.False(t, RuleAtomic.SplicesWhitespace())
	assert.False(t, RuleCompoundAtomic.SplicesWhitespace())
}

func TestGrammarSpecRule(t *testing.T) {
	spec := GrammarSpec{Rules: []Rule{{Name: "a", Expr: S("x")}, {Name: "b", Expr: I("a")}}}

	r, ok := spec.Rule("b")
	require.True(t, ok)
	assert.Equal(t, "b", r.Name)

	_, ok = spec.Rule("missing")
	assert.False(t, ok)
}
