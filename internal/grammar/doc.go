// Package grammar holds the compiled, index-based form of a grammar.
//
// Symbols are small integer handles interned in a Table. A Grammar owns all
// productions in one arena keyed by Symbol, so recursive rules are plain index
// cycles rather than pointer graphs.
//
// Two shapes exist:
//
//	raw         productions exactly as the compiler emitted them; repetitions
//	            are right-recursive productions plus Repetition metadata
//	normalized  every right-hand side has at most two symbols and repetitions
//	            are native Sequence entries (see Normalize)
//
// A normalized grammar is frozen. Frozen grammars, their tables and their
// ConstraintSets are never mutated again and are safe for concurrent readers.
package grammar
