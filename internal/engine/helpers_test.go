package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func compile(t testing.TB, start string, rules ...ir.Rule) *compiler.Compiled {
	t.Helper()
	c, err := compiler.Compile(&ir.GrammarSpec{Name: "test", Start: start, Rules: rules},
		compiler.WithLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

func newEngine(c *compiler.Compiled, opts ...Option) *Engine {
	return New(c.Normalized, c.Constraints, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func newRawEngine(c *compiler.Compiled, opts ...Option) *Engine {
	return New(c.Raw, c.Constraints, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func rule(name string, e ir.Expr) ir.Rule {
	return ir.Rule{Name: name, Expr: e}
}

// xyz is A = "x" ("y" | "z")*.
func xyz(t testing.TB) *compiler.Compiled {
	return compile(t, "A", rule("A", ir.SeqOf(ir.S("x"), ir.Star(ir.ChoiceOf(ir.S("y"), ir.S("z"))))))
}

// calc is a small expression grammar exercising whitespace splicing,
// recursion, weights, bounded repetition and a negative lookahead.
func calc(t testing.TB) *compiler.Compiled {
	atomic := func(name string, e ir.Expr) ir.Rule {
		return ir.Rule{Name: name, Type: ir.RuleAtomic, Expr: e}
	}
	return compile(t, "expr",
		rule("WHITESPACE", ir.S(" ")),
		rule("expr", ir.SeqOf(ir.I("term"), ir.Star(ir.SeqOf(ir.I("op"), ir.I("term"))))),
		rule("term", ir.ChoiceOf(ir.I("num"), ir.I("ident"), ir.SeqOf(ir.S("("), ir.I("expr"), ir.S(")")))),
		rule("op", &ir.Choice{Left: ir.S("+"), Right: ir.S("*"), LeftWeight: 3, RightWeight: 1}),
		atomic("num", &ir.Rep{Inner: ir.I("ASCII_DIGIT"), Min: 1, Max: 3}),
		atomic("ident", ir.SeqOf(&ir.NegPred{Inner: ir.I("keyword")}, ir.Plus(ir.R('a', 'f')))),
		rule("keyword", ir.ChoiceOf(ir.S("if"), ir.S("fe"))),
	)
}
