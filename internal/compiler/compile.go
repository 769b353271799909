package compiler

import (
	"fmt"
	"log/slog"

	"github.com/roach88/cfgfuzz/internal/grammar"
	"github.com/roach88/cfgfuzz/internal/ir"
)

// Compiled is the result of compiling one grammar spec.
type Compiled struct {
	Spec *ir.GrammarSpec
	// Raw holds the productions as emitted, with repetitions in their
	// right-recursive encoding.
	Raw *grammar.Grammar
	// Normalized is the frozen generation form of Raw.
	Normalized  *grammar.Grammar
	Constraints *grammar.ConstraintSet
	Hash        string
}

// Symbol resolves a rule name in the normalized grammar.
func (c *Compiled) Symbol(name string) (grammar.Symbol, bool) {
	s, ok := c.Normalized.Symbols.Lookup(name)
	if !ok || (!c.Normalized.Symbols.Info(s).Kind.IsTerminal() && !c.Normalized.Defined(s)) {
		return 0, false
	}
	return s, true
}

// Option configures Compile.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	caseFolding bool
}

// WithLogger sets the logger used for compilation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCaseFolding makes case-insensitive literals generate either case of
// each cased letter. Without it they generate the literal as written.
func WithCaseFolding() Option {
	return func(o *options) {
		o.caseFolding = true
	}
}

// Compile translates a grammar spec into raw and normalized grammars plus the
// negative constraints its lookaheads imply.
func Compile(spec *ir.GrammarSpec, opts ...Option) (*Compiled, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if errs := Validate(spec); len(errs) > 0 {
		return nil, &CompileError{Code: errs[0].Code, Field: errs[0].Field, Message: errs[0].Message}
	}

	c := newCompilation(spec, o)
	for _, r := range spec.Rules {
		if err := c.compileRule(r); err != nil {
			return nil, err
		}
	}
	if err := classifyTerminals(c.tab); err != nil {
		return nil, err
	}
	if start, ok := c.tab.Lookup(spec.Start); !ok || c.tab.Kind(start) != grammar.KindNonterminal || !c.g.Defined(start) {
		return nil, &CompileError{
			Code:    ErrInvalidStart,
			Field:   "start",
			Message: fmt.Sprintf("start rule %q has no productions", spec.Start),
		}
	}
	if dangling := c.g.Dangling(); len(dangling) > 0 {
		name := c.tab.Name(dangling[0])
		return nil, &CompileError{
			Code:    ErrUnknownReference,
			Field:   name,
			Message: fmt.Sprintf("symbol %q has no definition", name),
		}
	}

	normalized, err := grammar.Normalize(c.g)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", spec.Name, err)
	}
	hash, err := ir.GrammarHash(*spec)
	if err != nil {
		return nil, fmt.Errorf("compile %s: hash: %w", spec.Name, err)
	}

	o.logger.Debug("grammar compiled",
		"grammar", spec.Name,
		"rules", len(spec.Rules),
		"symbols", normalized.Symbols.Len(),
		"productions", normalized.ProductionCount(),
		"constraints", c.cs.Len(),
	)

	return &Compiled{
		Spec:        spec,
		Raw:         c.g,
		Normalized:  normalized,
		Constraints: c.cs,
		Hash:        hash,
	}, nil
}

// compilation holds the state owned by one Compile call.
type compilation struct {
	spec  *ir.GrammarSpec
	opts  options
	tab   *grammar.Table
	g     *grammar.Grammar
	cs    *grammar.ConstraintSet
	rules map[string]ir.Rule

	whitespace    grammar.Symbol
	hasWhitespace bool
	folded        map[rune]grammar.Symbol
}

func newCompilation(spec *ir.GrammarSpec, o options) *compilation {
	tab := grammar.NewTable()
	c := &compilation{
		spec:   spec,
		opts:   o,
		tab:    tab,
		g:      grammar.New(tab),
		cs:     grammar.NewConstraintSet(),
		rules:  make(map[string]ir.Rule, len(spec.Rules)),
		folded: make(map[rune]grammar.Symbol),
	}
	// Rule symbols are interned in declaration order so handles are stable
	// for a given spec.
	for _, r := range spec.Rules {
		tab.InternNonterminal(r.Name)
		c.rules[r.Name] = r
	}
	if _, ok := c.rules[WhitespaceRule]; ok {
		c.hasWhitespace = true
		c.whitespace, _ = tab.Lookup(WhitespaceRule)
	}
	return c
}

func (c *compilation) compileRule(r ir.Rule) error {
	lhs, _ := c.tab.Lookup(r.Name)
	rc := &ruleCompiler{
		c:      c,
		rule:   r,
		splice: c.hasWhitespace && r.Type.SplicesWhitespace() && r.Name != WhitespaceRule && r.Name != CommentRule,
	}

	// A top-level choice becomes the rule's own alternatives.
	if ch, ok := r.Expr.(*ir.Choice); ok {
		return rc.alternatives(lhs, ch)
	}
	rhs, err := rc.expr(r.Expr)
	if err != nil {
		return err
	}
	return c.g.AddProduction(lhs, rhs, 0)
}
