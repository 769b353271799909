package engine

import (
	"github.com/roach88/cfgfuzz/internal/entropy"
	"github.com/roach88/cfgfuzz/internal/grammar"
)

// frame is one unit of pending work. A symbol frame expands sym once; a
// sequence frame stays on the stack and yields one elem per visit until it
// decides to stop.
type frame struct {
	sym   grammar.Symbol
	seq   bool
	elem  grammar.Symbol
	min   int
	max   int
	count int
}

// checkpoint is the state captured when a marker symbol is expanded.
type checkpoint struct {
	c        *grammar.Constraint
	stack    []frame
	outLen   int
	retries  int
	fallback bool
}

// derivation is the mutable state of one Generate call.
type derivation struct {
	e       *Engine
	rule    string
	cur     *entropy.Cursor
	ceiling int
	quota   *StepQuota

	stack   []frame
	out     []rune
	pending []checkpoint
	// zero counts checkpoints in fallback; while positive every draw is 0
	// and consumes nothing.
	zero    int
	retries int
}

func newDerivation(e *Engine, rule string, buf []byte, ceiling int) *derivation {
	return &derivation{
		e:       e,
		rule:    rule,
		cur:     entropy.New(buf),
		ceiling: ceiling,
		quota:   NewStepQuota(e.maxSteps),
	}
}

func (d *derivation) draw(n int) int {
	if d.zero > 0 {
		return 0
	}
	return d.cur.DrawBounded(n)
}

// run expands start to completion. The returned slice is never a partial
// derivation: any error discards it.
func (d *derivation) run(start grammar.Symbol) ([]rune, error) {
	d.stack = append(d.stack, frame{sym: start})
	for len(d.stack) > 0 {
		if err := d.quota.Check(); err != nil {
			return nil, NewStepLimitError(d.rule, err.(*StepsExceededError))
		}
		if err := d.step(); err != nil {
			return nil, err
		}
		if d.e.maxDepth > 0 && len(d.stack) > d.e.maxDepth {
			return nil, NewDepthLimitError(d.rule, len(d.stack), d.e.maxDepth)
		}
	}
	return d.out, nil
}

func (d *derivation) step() error {
	top := len(d.stack) - 1
	f := &d.stack[top]

	if f.seq {
		switch {
		case f.count < f.min:
		case f.max != grammar.Unbounded && f.count >= f.max:
			d.stack = d.stack[:top]
			return nil
		case d.draw(2) == 0:
			d.stack = d.stack[:top]
			return nil
		}
		f.count++
		d.stack = append(d.stack, frame{sym: f.elem})
		return nil
	}

	sym := f.sym
	d.stack = d.stack[:top]
	info := d.e.g.Symbols.Info(sym)

	switch info.Kind {
	case grammar.KindNull:
		return nil
	case grammar.KindSingleChar:
		return d.emit(info.Lo)
	case grammar.KindCharRange:
		return d.emit(info.Lo + rune(d.draw(int(info.Hi-info.Lo)+1)))
	case grammar.KindNonterminal:
	default:
		// Unclassified symbols derive nothing.
		return nil
	}

	if c, ok := d.e.cs.Lookup(sym); ok {
		d.pending = append(d.pending, checkpoint{
			c:      c,
			stack:  append([]frame(nil), d.stack...),
			outLen: len(d.out),
		})
		return nil
	}

	if seq, ok := d.e.g.Sequence(sym); ok {
		d.stack = append(d.stack, frame{seq: true, elem: seq.Elem, min: seq.Min, max: seq.Max})
		return nil
	}

	prods := d.e.g.Productions(sym)
	if len(prods) == 0 {
		return nil
	}
	rhs := prods[d.pick(sym, len(prods))].RHS
	for i := len(rhs) - 1; i >= 0; i-- {
		d.stack = append(d.stack, frame{sym: rhs[i]})
	}
	return nil
}

// pick selects an alternative: uniformly, or by relative weight when the
// nonterminal has weighted productions.
func (d *derivation) pick(sym grammar.Symbol, n int) int {
	c, ok := d.e.choices[sym]
	if !ok {
		return d.draw(n)
	}
	v := d.draw(c.total)
	for i, cum := range c.cum {
		if v < cum {
			return i
		}
	}
	return n - 1
}

func (d *derivation) emit(r rune) error {
	if d.ceiling > 0 && len(d.out) >= d.ceiling {
		return NewSizeLimitError(d.rule, d.ceiling)
	}
	d.out = append(d.out, r)
	if len(d.pending) > 0 {
		return d.check()
	}
	return nil
}

// check tests the checkpoints whose window covers the character just
// emitted, oldest first, and restores the first one that collides.
//
// A forbidden string can only appear when its last character is emitted,
// so checking at emission is complete and no final pass is needed.
// Checkpoints are kept until the derivation ends because restoring a newer
// one can rewrite text inside an older window.
func (d *derivation) check() error {
	p := len(d.out) - 1
	// pending is ordered by outLen.
	lo := len(d.pending)
	for lo > 0 && d.pending[lo-1].outLen+d.e.maxWindow > p {
		lo--
	}
	for i := lo; i < len(d.pending); i++ {
		cp := &d.pending[i]
		if p >= cp.outLen+cp.c.MaxLen() {
			continue
		}
		text := d.out[cp.outLen:]
		if hit, collides := cp.c.Collision(text); collides {
			return d.restore(i, hit)
		}
		if cp.fallback && cp.c.Decided(text) {
			// The substitute cleared its window; later draws use entropy again.
			cp.fallback = false
			d.zero--
		}
	}
	return nil
}

// restore rewinds to pending[i], dropping every later checkpoint. Entropy
// is not rewound.
func (d *derivation) restore(i int, hit string) error {
	for _, later := range d.pending[i+1:] {
		if later.fallback {
			d.zero--
		}
	}
	d.pending = d.pending[:i+1]
	cp := &d.pending[i]

	if cp.fallback {
		return NewConstraintError(d.rule, hit, cp.retries)
	}
	if cp.retries >= d.e.maxRetries {
		// From here on this checkpoint derives with zero entropy.
		cp.fallback = true
		d.zero++
	} else {
		cp.retries++
		d.retries++
	}

	d.out = d.out[:cp.outLen]
	d.stack = append(d.stack[:0], cp.stack...)
	return nil
}
