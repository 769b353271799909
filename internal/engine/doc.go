// Package engine derives strings from a compiled grammar under the control of
// an entropy buffer.
//
// The engine is an interpreter over a frozen, normalized grammar. Every
// decision (which alternative, which character of a range, whether a
// repetition continues) is one bounded draw from an entropy.Cursor, so the
// output is a pure function of (grammar, start rule, bytes, ceiling).
//
// DERIVATION:
//
// Expansion is depth-first and left-to-right on an explicit work stack.
// Deeply recursive grammars grow the stack slice, never the goroutine stack.
// Three limits make every derivation finite:
//   - the size ceiling, counted in emitted characters
//   - the step quota, counted in expanded frames
//   - the negative-constraint retry budget
//
// Exhausted entropy is not an error: missing bytes read as zero, so an empty
// buffer still yields the "all first choices" derivation.
//
// NEGATIVE CONSTRAINTS:
//
// A marker symbol checkpoints the work stack and the output length. When the
// text after the marker is long enough to be decided (or the derivation
// ends), it is compared against the forbidden strings. A collision restores
// the checkpoint and derives again with the entropy that follows; entropy is
// never rewound. After the retry budget is spent the checkpoint is derived
// once more with zero entropy, and a collision then is
// NEGATIVE_CONSTRAINT_UNSATISFIABLE.
//
// Engines are immutable after New and safe for concurrent Generate calls.
package engine
