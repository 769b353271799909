package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGrammar = "cfgfuzz/grammar/v1"
	DomainEntry   = "cfgfuzz/entry/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GrammarHash computes the content-addressed identity of a grammar spec.
// Two specs with the same rules, types and expressions hash identically
// regardless of where they were loaded from. The spec Name is excluded so
// renaming a grammar does not orphan its corpus.
func GrammarHash(spec GrammarSpec) (string, error) {
	canonical, err := MarshalCanonical(SpecValue(spec))
	if err != nil {
		return "", fmt.Errorf("GrammarHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGrammar, canonical), nil
}

// EntryID computes the content-addressed ID of a corpus entry.
// The ID is stable across runs given the same grammar, start rule, entropy
// and ceiling, which is what makes corpus deduplication work.
func EntryID(grammarHash, start string, entropy []byte, ceiling int64) (string, error) {
	obj := IRObject{
		"grammar_hash": IRString(grammarHash),
		"start":        IRString(start),
		"entropy":      IRString(hex.EncodeToString(entropy)),
		"ceiling":      IRInt(ceiling),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EntryID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEntry, canonical), nil
}

// MustGrammarHash is like GrammarHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustGrammarHash(spec GrammarSpec) string {
	h, err := GrammarHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}
