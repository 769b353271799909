package grammar

import (
	"errors"
	"fmt"
	"strconv"
)

// Symbol is an opaque handle for an interned grammar symbol.
type Symbol uint32

// Kind classifies a symbol.
type Kind uint8

const (
	// KindUnclassified is the placeholder for names referenced before their
	// role is known.
	KindUnclassified Kind = iota
	KindNonterminal
	KindNull
	KindSingleChar
	KindCharRange
)

func (k Kind) String() string {
	switch k {
	case KindUnclassified:
		return "unclassified"
	case KindNonterminal:
		return "nonterminal"
	case KindNull:
		return "null"
	case KindSingleChar:
		return "char"
	case KindCharRange:
		return "range"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsTerminal reports whether the kind produces output directly.
func (k Kind) IsTerminal() bool {
	return k == KindNull || k == KindSingleChar || k == KindCharRange
}

// SymbolInfo describes an interned symbol.
// Lo and Hi are set for KindSingleChar (Lo == Hi) and KindCharRange.
type SymbolInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Lo   rune   `json:"lo,omitempty"`
	Hi   rune   `json:"hi,omitempty"`
	// Anonymous is set for compiler-generated symbols.
	Anonymous bool `json:"anonymous,omitempty"`
}

// ErrAlreadyClassified is returned when classifying a symbol that already
// left the placeholder kind.
var ErrAlreadyClassified = errors.New("symbol already classified")

// Table interns symbol names and character ranges.
// It is owned by one compilation and passed by reference, never global.
type Table struct {
	infos   []SymbolInfo
	byName  map[string]Symbol
	byRange map[[2]rune]Symbol
	fresh   int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		byName:  make(map[string]Symbol),
		byRange: make(map[[2]rune]Symbol),
	}
}

func (t *Table) add(info SymbolInfo) Symbol {
	s := Symbol(len(t.infos))
	t.infos = append(t.infos, info)
	t.byName[info.Name] = s
	return s
}

// InternNonterminal returns the symbol for a rule name, creating an
// unclassified placeholder the first time the name is seen.
func (t *Table) InternNonterminal(name string) Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	return t.add(SymbolInfo{Name: name})
}

// InternCharRange returns the terminal for the inclusive range lo..hi.
// A single-character range is interned as KindSingleChar.
func (t *Table) InternCharRange(lo, hi rune) Symbol {
	key := [2]rune{lo, hi}
	if s, ok := t.byRange[key]; ok {
		return s
	}
	info := SymbolInfo{Kind: KindCharRange, Lo: lo, Hi: hi}
	if lo == hi {
		info.Kind = KindSingleChar
		info.Name = strconv.QuoteRune(lo)
	} else {
		info.Name = strconv.QuoteRune(lo) + ".." + strconv.QuoteRune(hi)
	}
	s := t.add(info)
	t.byRange[key] = s
	return s
}

// Fresh creates an anonymous nonterminal. The name is unique and only used
// for diagnostics.
func (t *Table) Fresh(prefix string) Symbol {
	t.fresh++
	return t.add(SymbolInfo{
		Name:      fmt.Sprintf("%s#%d", prefix, t.fresh),
		Kind:      KindNonterminal,
		Anonymous: true,
	})
}

// Classify assigns a kind to a placeholder symbol. Re-classifying to the
// identical kind is a no-op; any other change is ErrAlreadyClassified.
func (t *Table) Classify(s Symbol, kind Kind, lo, hi rune) error {
	if int(s) >= len(t.infos) {
		return fmt.Errorf("classify: unknown symbol %d", s)
	}
	info := &t.infos[s]
	if kind == KindCharRange && lo == hi {
		kind = KindSingleChar
	}
	if (kind == KindSingleChar || kind == KindCharRange) && lo > hi {
		return fmt.Errorf("classify %s: invalid range %q..%q", info.Name, lo, hi)
	}
	if info.Kind != KindUnclassified {
		if info.Kind == kind && info.Lo == lo && info.Hi == hi {
			return nil
		}
		return fmt.Errorf("%w: %s is %s", ErrAlreadyClassified, info.Name, info.Kind)
	}
	info.Kind = kind
	if kind == KindSingleChar || kind == KindCharRange {
		info.Lo, info.Hi = lo, hi
	}
	return nil
}

// Lookup returns the symbol interned under name.
func (t *Table) Lookup(name string) (Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Info returns the description of s.
func (t *Table) Info(s Symbol) SymbolInfo {
	return t.infos[s]
}

// Name returns the diagnostic name of s.
func (t *Table) Name(s Symbol) string {
	if int(s) >= len(t.infos) {
		return fmt.Sprintf("<sym %d>", s)
	}
	return t.infos[s].Name
}

// Kind returns the kind of s.
func (t *Table) Kind(s Symbol) Kind {
	return t.infos[s].Kind
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	return len(t.infos)
}

// Unclassified returns every symbol still holding the placeholder kind,
// in interning order.
func (t *Table) Unclassified() []Symbol {
	var out []Symbol
	for i, info := range t.infos {
		if info.Kind == KindUnclassified {
			out = append(out, Symbol(i))
		}
	}
	return out
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		infos:   make([]SymbolInfo, len(t.infos)),
		byName:  make(map[string]Symbol, len(t.byName)),
		byRange: make(map[[2]rune]Symbol, len(t.byRange)),
		fresh:   t.fresh,
	}
	copy(c.infos, t.infos)
	for k, v := range t.byName {
		c.byName[k] = v
	}
	for k, v := range t.byRange {
		c.byRange[k] = v
	}
	return c
}
