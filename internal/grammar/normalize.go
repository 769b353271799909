package grammar

import "fmt"

// Normalize rewrites a raw grammar into its generation form:
//
//   - every right-hand side longer than two symbols becomes a chain of fresh
//     two-symbol productions, order preserved, weight kept on the head
//   - every recorded repetition becomes a native Sequence and the helper
//     symbols of its right-recursive encoding are dropped
//
// The raw grammar is not modified. The result is frozen.
//
// Chain links have a single production, so they cost no entropy and the
// normalized grammar derives the same string as the raw one for any input.
func Normalize(raw *Grammar) (*Grammar, error) {
	out := New(raw.Symbols.Clone())

	reps := make(map[Symbol]Sequence, len(raw.repetitions))
	for _, r := range raw.repetitions {
		reps[r.LHS] = r
	}

	for _, lhs := range raw.order {
		seq, ok := raw.sequences[lhs]
		if !ok {
			seq, ok = reps[lhs]
		}
		if ok {
			if err := out.AddSequence(seq); err != nil {
				return nil, fmt.Errorf("normalize %s: %w", raw.Symbols.Name(lhs), err)
			}
			continue
		}
		for _, p := range raw.prods[lhs] {
			if err := out.binarize(p); err != nil {
				return nil, fmt.Errorf("normalize %s: %w", raw.Symbols.Name(lhs), err)
			}
		}
	}

	out.pruneAnonymous()
	out.Freeze()
	return out, nil
}

func (g *Grammar) binarize(p Production) error {
	if len(p.RHS) <= 2 {
		return g.AddProduction(p.LHS, p.RHS, p.Weight)
	}
	prefix := g.Symbols.Name(p.LHS)
	cur, weight := p.LHS, p.Weight
	for i := 0; i < len(p.RHS)-2; i++ {
		next := g.Symbols.Fresh(prefix)
		if err := g.AddProduction(cur, []Symbol{p.RHS[i], next}, weight); err != nil {
			return err
		}
		cur, weight = next, 0
	}
	n := len(p.RHS)
	return g.AddProduction(cur, p.RHS[n-2:], weight)
}

// pruneAnonymous removes compiler-generated nonterminals that no named rule
// can reach.
func (g *Grammar) pruneAnonymous() {
	reached := make(map[Symbol]bool)
	var stack []Symbol
	for _, s := range g.order {
		if !g.Symbols.Info(s).Anonymous {
			reached[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.Successors(s) {
			if !reached[next] {
				reached[next] = true
				stack = append(stack, next)
			}
		}
	}

	kept := g.order[:0]
	for _, s := range g.order {
		if reached[s] {
			kept = append(kept, s)
			continue
		}
		delete(g.prods, s)
		delete(g.sequences, s)
	}
	g.order = kept
}

// Successors returns the symbols directly referenced by the definition of s.
func (g *Grammar) Successors(s Symbol) []Symbol {
	if seq, ok := g.sequences[s]; ok {
		return []Symbol{seq.Elem}
	}
	var out []Symbol
	for _, p := range g.prods[s] {
		out = append(out, p.RHS...)
	}
	return out
}
