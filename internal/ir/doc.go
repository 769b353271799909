// Package ir provides the grammar intermediate representation for cfgfuzz.
//
// A grammar arrives as an ordered list of named rules, each carrying an
// atomicity tag and an expression tree. The tree is the compiler's input
// contract; everything upstream of it (CUE decoding, hand-built test
// fixtures) produces a GrammarSpec, everything downstream consumes one.
//
// This package contains type definitions and canonical encoding only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Expr is a sealed interface; only node types in this package implement it
//   - NO float types in canonical encoding - use int64 for numbers
//   - Grammar identity is content-addressed (GrammarHash) over RFC 8785 JSON
package ir
