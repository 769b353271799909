package store

import (
	"fmt"

	"github.com/roach88/cfgfuzz/internal/ir"
)

// NewGrammar builds the stored form of spec. Spec holds the same canonical
// JSON the grammar hash is computed over, so Hash can be re-derived from it.
func NewGrammar(spec ir.GrammarSpec) (Grammar, error) {
	hash, err := ir.GrammarHash(spec)
	if err != nil {
		return Grammar{}, fmt.Errorf("new grammar: %w", err)
	}
	data, err := marshalSpec(spec)
	if err != nil {
		return Grammar{}, fmt.Errorf("new grammar: %w", err)
	}
	return Grammar{
		Hash:      hash,
		Name:      spec.Name,
		Start:     spec.Start,
		Spec:      data,
		IRVersion: ir.IRVersion,
	}, nil
}

// marshalSpec converts a grammar spec to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalSpec(spec ir.GrammarSpec) (string, error) {
	data, err := ir.MarshalCanonical(ir.SpecValue(spec))
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return string(data), nil
}

// boolInt maps a Go bool onto SQLite's integer booleans.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
