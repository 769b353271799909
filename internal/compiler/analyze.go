package compiler

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/cfgfuzz/internal/grammar"
)

// Report is the static analysis of a compiled grammar.
type Report struct {
	// Unproductive rules cannot derive any finite string.
	Unproductive []string `json:"unproductive,omitempty"`
	// Unreachable rules are not referenced, directly or indirectly, from the
	// start rule.
	Unreachable []string `json:"unreachable,omitempty"`
	// MinLength is the length of the shortest string each productive rule
	// derives.
	MinLength map[string]int `json:"min_length"`
	// Cycles lists recursive rule groups. Recursion is normal in grammars,
	// so these are informational except for ZeroEntropy cycles.
	Cycles []CycleWarning `json:"cycles,omitempty"`
}

// CycleWarning describes a group of mutually recursive rules.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["expr", "term", "expr"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// HasWarnings reports whether any finding should fail a strict validation.
func (r Report) HasWarnings() bool {
	if len(r.Unproductive) > 0 {
		return true
	}
	for _, c := range r.Cycles {
		if c.Level == "warning" {
			return true
		}
	}
	return false
}

const infinite = math.MaxInt

// Analyze inspects the normalized grammar of c.
//
// Productivity and minimum length are one fixpoint: a symbol is productive
// exactly when its minimum length is finite. Cycles come from Tarjan's
// algorithm over the rule dependency graph, once over every edge (recursion,
// level "info") and once over the edges a derivation follows when every draw
// is zero (level "warning": with exhausted entropy such a derivation never
// ends and only the step quota stops it).
func Analyze(c *Compiled) Report {
	g := c.Normalized
	minLen := minLengths(g)

	report := Report{MinLength: make(map[string]int)}
	for _, r := range c.Spec.Rules {
		s, ok := g.Symbols.Lookup(r.Name)
		if !ok {
			continue
		}
		if n := minLen[s]; n == infinite {
			report.Unproductive = append(report.Unproductive, r.Name)
		} else {
			report.MinLength[r.Name] = n
		}
	}

	reached := map[grammar.Symbol]bool{}
	if start, ok := g.Symbols.Lookup(c.Spec.Start); ok {
		reached = reachable(g, start)
	}
	for _, r := range c.Spec.Rules {
		s, _ := g.Symbols.Lookup(r.Name)
		if !reached[s] && r.Name != WhitespaceRule && r.Name != CommentRule {
			report.Unreachable = append(report.Unreachable, r.Name)
		}
	}

	for _, path := range findCycles(g, g.Successors) {
		report.Cycles = append(report.Cycles, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("Recursive rules: %s", strings.Join(path, " → ")),
			Level:   "info",
		})
	}
	for _, path := range findCycles(g, func(s grammar.Symbol) []grammar.Symbol { return zeroSuccessors(g, s) }) {
		report.Cycles = append(report.Cycles, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("Derivation does not terminate when entropy is exhausted: %s", strings.Join(path, " → ")),
			Level:   "warning",
		})
	}
	return report
}

// minLengths computes the shortest derivable string length of every symbol
// by iterating to a fixpoint from infinity.
func minLengths(g *grammar.Grammar) map[grammar.Symbol]int {
	out := make(map[grammar.Symbol]int)
	get := func(s grammar.Symbol) int {
		switch g.Symbols.Kind(s) {
		case grammar.KindNull:
			return 0
		case grammar.KindSingleChar, grammar.KindCharRange:
			return 1
		}
		if n, ok := out[s]; ok {
			return n
		}
		return infinite
	}

	for changed := true; changed; {
		changed = false
		for _, lhs := range g.Nonterminals() {
			best := get(lhs)
			if seq, ok := g.Sequence(lhs); ok {
				if seq.Min == 0 {
					best = 0
				} else if e := get(seq.Elem); e != infinite {
					best = min(best, saturatingMul(e, seq.Min))
				}
			}
			for _, p := range g.Productions(lhs) {
				sum := 0
				for _, s := range p.RHS {
					n := get(s)
					if n == infinite {
						sum = infinite
						break
					}
					sum = saturatingAdd(sum, n)
				}
				best = min(best, sum)
			}
			if best < get(lhs) {
				out[lhs] = best
				changed = true
			}
		}
	}
	return out
}

func saturatingAdd(a, b int) int {
	if a > infinite-1-b {
		return infinite - 1
	}
	return a + b
}

func saturatingMul(a, n int) int {
	if a != 0 && n > (infinite-1)/a {
		return infinite - 1
	}
	return a * n
}

func reachable(g *grammar.Grammar, start grammar.Symbol) map[grammar.Symbol]bool {
	seen := map[grammar.Symbol]bool{start: true}
	stack := []grammar.Symbol{start}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.Successors(s) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// zeroSuccessors returns the symbols expanded under s when every draw is
// zero: the first alternative with a positive weight, or Min copies of a
// sequence element.
func zeroSuccessors(g *grammar.Grammar, s grammar.Symbol) []grammar.Symbol {
	if seq, ok := g.Sequence(s); ok {
		if seq.Min > 0 {
			return []grammar.Symbol{seq.Elem}
		}
		return nil
	}
	prods := g.Productions(s)
	if len(prods) == 0 {
		return nil
	}
	weighted := false
	for _, p := range prods {
		if p.Weight != 0 {
			weighted = true
			break
		}
	}
	for _, p := range prods {
		if !weighted || p.Weight > 0 {
			return p.RHS
		}
	}
	return nil
}

// findCycles runs Tarjan's algorithm over the nonterminals of g and returns
// one path per strongly connected component that contains a cycle. Paths
// only name declared rules; components made up solely of compiler-generated
// symbols are reported under the rule that owns them.
func findCycles(g *grammar.Grammar, next func(grammar.Symbol) []grammar.Symbol) [][]string {
	var (
		index   = 0
		stack   []grammar.Symbol
		indices = make(map[grammar.Symbol]int)
		lowlink = make(map[grammar.Symbol]int)
		onStack = make(map[grammar.Symbol]bool)
		sccs    [][]grammar.Symbol
	)

	var strongConnect func(grammar.Symbol)
	strongConnect = func(v grammar.Symbol) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range next(v) {
			if !g.Defined(w) {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []grammar.Symbol
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, s := range g.Nonterminals() {
		if _, visited := indices[s]; !visited {
			strongConnect(s)
		}
	}

	var paths [][]string
	for _, scc := range sccs {
		if len(scc) == 1 && !slices.Contains(next(scc[0]), scc[0]) {
			continue
		}
		paths = append(paths, cyclePath(g, scc, next))
	}
	slices.SortFunc(paths, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	return paths
}

// cyclePath walks the component from its first named member until it
// returns to the start, keeping only named rules in the path.
func cyclePath(g *grammar.Grammar, scc []grammar.Symbol, next func(grammar.Symbol) []grammar.Symbol) []string {
	members := make(map[grammar.Symbol]bool, len(scc))
	for _, s := range scc {
		members[s] = true
	}
	slices.Sort(scc)
	start := scc[0]
	for _, s := range scc {
		if !g.Symbols.Info(s).Anonymous {
			start = s
			break
		}
	}

	name := func(s grammar.Symbol) string {
		info := g.Symbols.Info(s)
		if info.Anonymous {
			return ""
		}
		return info.Name
	}

	path := []string{name(start)}
	visited := map[grammar.Symbol]bool{start: true}
	cur := start
	for {
		var step grammar.Symbol
		found := false
		for _, w := range next(cur) {
			if members[w] && (w == start || !visited[w]) {
				step, found = w, true
				if w == start {
					break
				}
			}
		}
		if !found {
			break
		}
		if n := name(step); n != "" {
			path = append(path, n)
		}
		if step == start {
			break
		}
		visited[step] = true
		cur = step
	}

	out := path[:0]
	for _, n := range path {
		if n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return []string{g.Symbols.Name(start)}
	}
	return out
}
