package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// Unbounded is the Sequence.Max value for repetitions without an upper bound.
const Unbounded = -1

// Production is one alternative of a nonterminal. An empty RHS is epsilon.
// Weight is a relative selection width; zero means unweighted.
type Production struct {
	LHS    Symbol
	RHS    []Symbol
	Weight uint32
}

// Sequence derives Elem between Min and Max times (inclusive).
//
// In a raw grammar a Sequence is metadata only: the repetition is encoded as
// right-recursive productions under LHS. In a normalized grammar it replaces
// those productions.
type Sequence struct {
	LHS  Symbol
	Elem Symbol
	Min  int
	Max  int
}

// Bounded reports whether the sequence has an upper bound.
func (s Sequence) Bounded() bool {
	return s.Max != Unbounded
}

// ErrFrozen is returned by mutators on a frozen grammar.
var ErrFrozen = errors.New("grammar is frozen")

// Grammar is an arena of productions indexed by symbol.
type Grammar struct {
	Symbols *Table

	prods       map[Symbol][]Production
	order       []Symbol
	repetitions []Sequence
	sequences   map[Symbol]Sequence
	frozen      bool
}

// New creates an empty grammar over the given symbol table.
func New(t *Table) *Grammar {
	return &Grammar{
		Symbols:   t,
		prods:     make(map[Symbol][]Production),
		sequences: make(map[Symbol]Sequence),
	}
}

// AddProduction appends an alternative for lhs. A placeholder lhs is
// classified as a nonterminal.
func (g *Grammar) AddProduction(lhs Symbol, rhs []Symbol, weight uint32) error {
	if g.frozen {
		return ErrFrozen
	}
	if err := g.claimNonterminal(lhs); err != nil {
		return err
	}
	if _, ok := g.sequences[lhs]; ok {
		return fmt.Errorf("add production: %s is a sequence", g.Symbols.Name(lhs))
	}
	g.prods[lhs] = append(g.prods[lhs], Production{
		LHS:    lhs,
		RHS:    append([]Symbol(nil), rhs...),
		Weight: weight,
	})
	return nil
}

// AddRepetition records repetition metadata for a raw grammar.
func (g *Grammar) AddRepetition(seq Sequence) error {
	if g.frozen {
		return ErrFrozen
	}
	if err := checkBounds(seq); err != nil {
		return err
	}
	g.repetitions = append(g.repetitions, seq)
	return nil
}

// AddSequence makes seq.LHS a native sequence. The LHS must have no
// productions.
func (g *Grammar) AddSequence(seq Sequence) error {
	if g.frozen {
		return ErrFrozen
	}
	if err := checkBounds(seq); err != nil {
		return err
	}
	if err := g.claimNonterminal(seq.LHS); err != nil {
		return err
	}
	if len(g.prods[seq.LHS]) > 0 {
		return fmt.Errorf("add sequence: %s already has productions", g.Symbols.Name(seq.LHS))
	}
	if _, ok := g.sequences[seq.LHS]; ok {
		return fmt.Errorf("add sequence: %s already defined", g.Symbols.Name(seq.LHS))
	}
	g.sequences[seq.LHS] = seq
	return nil
}

func checkBounds(seq Sequence) error {
	if seq.Min < 0 || (seq.Max != Unbounded && seq.Max < seq.Min) {
		return fmt.Errorf("invalid sequence bounds {%d,%d}", seq.Min, seq.Max)
	}
	return nil
}

func (g *Grammar) claimNonterminal(s Symbol) error {
	if int(s) >= g.Symbols.Len() {
		return fmt.Errorf("unknown symbol %d", s)
	}
	if err := g.Symbols.Classify(s, KindNonterminal, 0, 0); err != nil {
		return err
	}
	if _, seen := g.prods[s]; !seen {
		if _, seq := g.sequences[s]; !seq {
			g.order = append(g.order, s)
		}
	}
	return nil
}

// Productions returns the alternatives of s in declaration order. The slice
// must not be modified.
func (g *Grammar) Productions(s Symbol) []Production {
	return g.prods[s]
}

// Sequence returns the native sequence for s, if any.
func (g *Grammar) Sequence(s Symbol) (Sequence, bool) {
	seq, ok := g.sequences[s]
	return seq, ok
}

// Repetitions returns the recorded repetition metadata.
func (g *Grammar) Repetitions() []Sequence {
	return g.repetitions
}

// Nonterminals returns every symbol with productions or a sequence, in the
// order they were first defined.
func (g *Grammar) Nonterminals() []Symbol {
	return g.order
}

// Defined reports whether s has productions or a sequence.
func (g *Grammar) Defined(s Symbol) bool {
	if len(g.prods[s]) > 0 {
		return true
	}
	_, ok := g.sequences[s]
	return ok
}

// Dangling returns referenced nonterminal-kind symbols that have no
// definition, plus any symbol still unclassified.
func (g *Grammar) Dangling() []Symbol {
	seen := make(map[Symbol]bool)
	var out []Symbol
	check := func(s Symbol) {
		if seen[s] {
			return
		}
		seen[s] = true
		k := g.Symbols.Kind(s)
		if k == KindUnclassified || (k == KindNonterminal && !g.Defined(s)) {
			out = append(out, s)
		}
	}
	for _, lhs := range g.order {
		for _, p := range g.prods[lhs] {
			for _, s := range p.RHS {
				check(s)
			}
		}
		if seq, ok := g.sequences[lhs]; ok {
			check(seq.Elem)
		}
	}
	return out
}

// ProductionCount returns the total number of productions.
func (g *Grammar) ProductionCount() int {
	n := 0
	for _, ps := range g.prods {
		n += len(ps)
	}
	return n
}

// Freeze makes the grammar read-only.
func (g *Grammar) Freeze() {
	g.frozen = true
}

// Frozen reports whether the grammar is read-only.
func (g *Grammar) Frozen() bool {
	return g.frozen
}

// String renders the grammar one production per line, for diagnostics and
// golden files.
func (g *Grammar) String() string {
	var b strings.Builder
	for _, lhs := range g.order {
		name := g.Symbols.Name(lhs)
		if seq, ok := g.sequences[lhs]; ok {
			max := "*"
			if seq.Bounded() {
				max = fmt.Sprint(seq.Max)
			}
			fmt.Fprintf(&b, "%s -> %s{%d,%s}\n", name, g.Symbols.Name(seq.Elem), seq.Min, max)
			continue
		}
		for _, p := range g.prods[lhs] {
			b.WriteString(name)
			b.WriteString(" ->")
			if len(p.RHS) == 0 {
				b.WriteString(" \u03b5")
			}
			for _, s := range p.RHS {
				b.WriteByte(' ')
				b.WriteString(g.Symbols.Name(s))
			}
			if p.Weight != 0 {
				fmt.Fprintf(&b, " @%d", p.Weight)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
