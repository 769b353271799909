package compiler

import (
	"fmt"

	"github.com/roach88/cfgfuzz/internal/grammar"
)

// Names the compiler treats specially when a grammar references them without
// declaring a rule of the same name.
const (
	WhitespaceRule = "WHITESPACE"
	CommentRule    = "COMMENT"
)

type terminalClass struct {
	kind   grammar.Kind
	lo, hi rune
}

// builtinTerminals classifies well-known names that a grammar may reference
// without declaring. ASCII_ALPHA and ASCII_ALPHANUMERIC only generate lower
// case letters.
var builtinTerminals = map[string]terminalClass{
	"SOI":                {kind: grammar.KindNull},
	"EOI":                {kind: grammar.KindNull},
	"ASCII_ALPHA":        {kind: grammar.KindCharRange, lo: 'a', hi: 'z'},
	"ASCII_ALPHANUMERIC": {kind: grammar.KindCharRange, lo: 'a', hi: 'z'},
	"ASCII_DIGIT":        {kind: grammar.KindCharRange, lo: '0', hi: '9'},
	"ANY":                {kind: grammar.KindCharRange, lo: ' ', hi: '~'},
}

// lookaheadClasses lists the characters a negative lookahead on a builtin
// class forbids.
var lookaheadClasses = map[string]string{
	"ASCII_ALPHA":        "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"ASCII_DIGIT":        "0123456789",
	"ASCII_ALPHANUMERIC": "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
}

// IsBuiltin reports whether name is a well-known terminal.
func IsBuiltin(name string) bool {
	_, ok := builtinTerminals[name]
	return ok
}

// classifyTerminals assigns kinds to every symbol that was referenced but
// never received a production.
func classifyTerminals(tab *grammar.Table) error {
	for _, s := range tab.Unclassified() {
		name := tab.Name(s)
		class, ok := builtinTerminals[name]
		if !ok {
			return &CompileError{
				Code:    ErrUnknownReference,
				Field:   name,
				Message: fmt.Sprintf("reference to undefined rule %q", name),
			}
		}
		if err := tab.Classify(s, class.kind, class.lo, class.hi); err != nil {
			return fmt.Errorf("classify %s: %w", name, err)
		}
	}
	return nil
}
