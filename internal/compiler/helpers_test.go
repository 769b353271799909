package compiler

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/grammar"
	"github.com/roach88/cfgfuzz/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustCompile(t *testing.T, spec *ir.GrammarSpec, opts ...Option) *Compiled {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := Compile(spec, opts...)
	require.NoError(t, err)
	return c
}

// language enumerates rule in g up to maxLen runes.
func language(t *testing.T, g *grammar.Grammar, rule string, maxLen int) []string {
	t.Helper()
	s, ok := g.Symbols.Lookup(rule)
	require.True(t, ok, "rule %s not interned", rule)
	out, err := grammar.Language(g, s, grammar.LanguageOptions{MaxLen: maxLen})
	require.NoError(t, err)
	return out
}

func rule(name string, e ir.Expr) ir.Rule {
	return ir.Rule{Name: name, Expr: e}
}

func spec(start string, rules ...ir.Rule) *ir.GrammarSpec {
	return &ir.GrammarSpec{Name: "test", Start: start, Rules: rules}
}
