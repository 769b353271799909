package grammar

import (
	"fmt"
	"slices"
)

// Constraint forbids the text that follows a marker symbol from starting with
// any of the Forbidden strings.
type Constraint struct {
	Marker    Symbol
	Forbidden []string

	forbidden [][]rune
	maxLen    int
}

// MaxLen returns the length in runes of the longest forbidden string.
func (c *Constraint) MaxLen() int {
	return c.maxLen
}

// Collision returns the forbidden string that text starts with, if any.
// text is the output produced after the marker so far.
func (c *Constraint) Collision(text []rune) (string, bool) {
	for i, f := range c.forbidden {
		if len(text) >= len(f) && slices.Equal(text[:len(f)], f) {
			return c.Forbidden[i], true
		}
	}
	return "", false
}

// Decided reports whether text is long enough that no further output can
// change the outcome of Collision.
func (c *Constraint) Decided(text []rune) bool {
	return len(text) >= c.maxLen
}

// ConstraintSet maps marker symbols to their constraints.
type ConstraintSet struct {
	byMarker map[Symbol]*Constraint
	order    []Symbol
}

// NewConstraintSet creates an empty set.
func NewConstraintSet() *ConstraintSet {
	return &ConstraintSet{byMarker: make(map[Symbol]*Constraint)}
}

// Register adds a constraint for marker. Forbidden strings are deduplicated
// and sorted.
func (cs *ConstraintSet) Register(marker Symbol, forbidden []string) error {
	if _, ok := cs.byMarker[marker]; ok {
		return fmt.Errorf("register constraint: marker %d already registered", marker)
	}
	if len(forbidden) == 0 {
		return fmt.Errorf("register constraint: marker %d has no forbidden strings", marker)
	}
	fs := slices.Clone(forbidden)
	slices.Sort(fs)
	fs = slices.Compact(fs)

	c := &Constraint{Marker: marker, Forbidden: fs}
	for _, f := range fs {
		r := []rune(f)
		if len(r) == 0 {
			return fmt.Errorf("register constraint: marker %d forbids the empty string", marker)
		}
		c.forbidden = append(c.forbidden, r)
		c.maxLen = max(c.maxLen, len(r))
	}
	cs.byMarker[marker] = c
	cs.order = append(cs.order, marker)
	return nil
}

// Lookup returns the constraint attached to marker.
func (cs *ConstraintSet) Lookup(marker Symbol) (*Constraint, bool) {
	if cs == nil {
		return nil, false
	}
	c, ok := cs.byMarker[marker]
	return c, ok
}

// Len returns the number of constraints.
func (cs *ConstraintSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.order)
}

// All returns the constraints in registration order.
func (cs *ConstraintSet) All() []*Constraint {
	if cs == nil {
		return nil
	}
	out := make([]*Constraint, 0, len(cs.order))
	for _, m := range cs.order {
		out = append(out, cs.byMarker[m])
	}
	return out
}
