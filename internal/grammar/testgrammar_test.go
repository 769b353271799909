package grammar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// xyzGrammar builds the raw form of A = "x" ("y" | "z")* by hand, the way
// the compiler emits it.
func xyzGrammar(t *testing.T) (*Grammar, Symbol) {
	t.Helper()
	tab := NewTable()
	g := New(tab)

	a := tab.InternNonterminal("A")
	x := tab.InternCharRange('x', 'x')
	y := tab.InternCharRange('y', 'y')
	z := tab.InternCharRange('z', 'z')

	choice := tab.Fresh("A")
	require.NoError(t, g.AddProduction(choice, []Symbol{y}, 0))
	require.NoError(t, g.AddProduction(choice, []Symbol{z}, 0))

	rep := tab.Fresh("A")
	tail := tab.Fresh("A")
	require.NoError(t, g.AddProduction(tail, nil, 0))
	require.NoError(t, g.AddProduction(tail, []Symbol{choice, tail}, 0))
	require.NoError(t, g.AddProduction(rep, []Symbol{tail}, 0))
	require.NoError(t, g.AddRepetition(Sequence{LHS: rep, Elem: choice, Min: 0, Max: Unbounded}))

	require.NoError(t, g.AddProduction(a, []Symbol{x, rep}, 0))
	return g, a
}
