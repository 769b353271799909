// Package entropy turns a finite byte buffer into a deterministic stream of
// bounded choices.
package entropy

import "math/bits"

// Cursor is a read position over an entropy buffer. Each derivation owns its
// cursor; a Cursor is not safe for concurrent use.
type Cursor struct {
	buf []byte
	pos int
}

// New creates a cursor at the start of buf. The buffer is not copied and must
// not be modified while the cursor is in use.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Zero returns a cursor over no bytes. Every draw on it yields 0.
func Zero() *Cursor {
	return &Cursor{}
}

// DrawBounded returns a value in [0, n).
//
// For n <= 1 it returns 0 and consumes nothing. Otherwise it consumes the
// fewest bytes that can represent n-1, reads them big-endian and reduces
// modulo n. Bytes past the end of the buffer read as zero.
func (c *Cursor) DrawBounded(n int) int {
	if n <= 1 {
		return 0
	}
	k := WidthFor(n)
	var v uint64
	for i := 0; i < k; i++ {
		v <<= 8
		if c.pos < len(c.buf) {
			v |= uint64(c.buf[c.pos])
			c.pos++
		}
	}
	return int(v % uint64(n))
}

// WidthFor returns the number of bytes DrawBounded(n) consumes from a
// non-exhausted buffer.
func WidthFor(n int) int {
	if n <= 1 {
		return 0
	}
	return (bits.Len64(uint64(n-1)) + 7) / 8
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the buffer length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Exhausted reports whether every byte has been consumed.
func (c *Cursor) Exhausted() bool {
	return c.pos >= len(c.buf)
}

// Remaining returns the number of unconsumed bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Consumed returns the prefix of the buffer read so far. Replaying it
// reproduces every draw made up to now.
func (c *Cursor) Consumed() []byte {
	return c.buf[:c.pos]
}
