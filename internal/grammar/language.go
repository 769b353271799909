package grammar

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"
)

// DefaultMaxStrings bounds Language when LanguageOptions.MaxStrings is unset.
const DefaultMaxStrings = 100_000

// ErrLanguageTooLarge is returned when enumeration exceeds MaxStrings.
var ErrLanguageTooLarge = errors.New("language exceeds enumeration bound")

// LanguageOptions bounds Language.
type LanguageOptions struct {
	// MaxLen is the longest string, in runes, that is enumerated.
	MaxLen int
	// MaxStrings caps the size of any intermediate set.
	MaxStrings int
}

type stringSet map[string]int

// Language returns every string of at most opts.MaxLen runes derivable from
// start, sorted. It is a fixpoint over per-symbol string sets and does not
// consume entropy, so it serves as an independent reference for what the
// engine may produce.
func Language(g *Grammar, start Symbol, opts LanguageOptions) ([]string, error) {
	if opts.MaxLen < 0 {
		return nil, fmt.Errorf("language: negative max length %d", opts.MaxLen)
	}
	if opts.MaxStrings <= 0 {
		opts.MaxStrings = DefaultMaxStrings
	}
	e := &enumerator{
		g:     g,
		opts:  opts,
		sets:  make(map[Symbol]stringSet),
		terms: make(map[Symbol]stringSet),
	}

	reach := e.reachable(start)
	for changed := true; changed; {
		changed = false
		for _, lhs := range reach {
			grown, err := e.step(lhs)
			if err != nil {
				return nil, err
			}
			changed = changed || grown
		}
	}

	set, err := e.set(start)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}

type enumerator struct {
	g     *Grammar
	opts  LanguageOptions
	sets  map[Symbol]stringSet
	terms map[Symbol]stringSet
}

func (e *enumerator) reachable(start Symbol) []Symbol {
	seen := map[Symbol]bool{start: true}
	stack := []Symbol{start}
	var out []Symbol
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.g.Defined(s) {
			out = append(out, s)
		}
		for _, next := range e.g.Successors(s) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return out
}

// step recomputes the set of lhs and reports whether it grew.
func (e *enumerator) step(lhs Symbol) (bool, error) {
	cur := e.sets[lhs]
	if cur == nil {
		cur = make(stringSet)
		e.sets[lhs] = cur
	}
	before := len(cur)

	var derived []stringSet
	if seq, ok := e.g.Sequence(lhs); ok {
		s, err := e.sequence(seq)
		if err != nil {
			return false, err
		}
		derived = append(derived, s)
	} else {
		for _, p := range e.g.Productions(lhs) {
			acc := stringSet{"": 0}
			for _, sym := range p.RHS {
				next, err := e.set(sym)
				if err != nil {
					return false, err
				}
				if acc, err = e.concat(acc, next); err != nil {
					return false, err
				}
				if len(acc) == 0 {
					break
				}
			}
			derived = append(derived, acc)
		}
	}

	for _, d := range derived {
		for s, n := range d {
			cur[s] = n
		}
	}
	if len(cur) > e.opts.MaxStrings {
		return false, fmt.Errorf("%w: %s has more than %d strings", ErrLanguageTooLarge, e.g.Symbols.Name(lhs), e.opts.MaxStrings)
	}
	return len(cur) > before, nil
}

func (e *enumerator) sequence(seq Sequence) (stringSet, error) {
	elem, err := e.set(seq.Elem)
	if err != nil {
		return nil, err
	}
	out := make(stringSet)
	if seq.Min == 0 {
		out[""] = 0
	}
	// Past Min+MaxLen iterations every new string needs more than MaxLen
	// non-empty elements.
	limit := seq.Min + e.opts.MaxLen
	if seq.Bounded() {
		limit = min(limit, seq.Max)
	}
	acc := stringSet{"": 0}
	for k := 1; k <= limit; k++ {
		if acc, err = e.concat(acc, elem); err != nil {
			return nil, err
		}
		if len(acc) == 0 {
			break
		}
		if k >= seq.Min {
			for s, n := range acc {
				out[s] = n
			}
		}
	}
	return out, nil
}

func (e *enumerator) concat(a, b stringSet) (stringSet, error) {
	out := make(stringSet)
	for x, xn := range a {
		for y, yn := range b {
			if xn+yn > e.opts.MaxLen {
				continue
			}
			out[x+y] = xn + yn
		}
		if len(out) > e.opts.MaxStrings {
			return nil, fmt.Errorf("%w: more than %d partial strings", ErrLanguageTooLarge, e.opts.MaxStrings)
		}
	}
	return out, nil
}

// set returns the current string set of s.
func (e *enumerator) set(s Symbol) (stringSet, error) {
	info := e.g.Symbols.Info(s)
	switch info.Kind {
	case KindNonterminal, KindUnclassified:
		return e.sets[s], nil
	}
	if set, ok := e.terms[s]; ok {
		return set, nil
	}
	set := make(stringSet)
	switch info.Kind {
	case KindNull:
		set[""] = 0
	case KindSingleChar, KindCharRange:
		if int(info.Hi-info.Lo) >= e.opts.MaxStrings {
			return nil, fmt.Errorf("%w: range %s", ErrLanguageTooLarge, info.Name)
		}
		if e.opts.MaxLen >= 1 {
			for r := info.Lo; r <= info.Hi; r++ {
				if utf8.ValidRune(r) {
					set[string(r)] = 1
				}
			}
		}
	}
	e.terms[s] = set
	return set, nil
}
