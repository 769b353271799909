package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cfgfuzz/internal/compiler"
	"github.com/roach88/cfgfuzz/internal/engine"
	"github.com/roach88/cfgfuzz/internal/ir"
	"github.com/roach88/cfgfuzz/internal/store"
)

// LoadMode controls how errors are handled during grammar loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading grammars from a directory.
type LoadResult struct {
	Grammars  []ir.GrammarSpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Grammar returns the grammar with the given name. An empty name selects
// the only grammar when exactly one was loaded.
func (r *LoadResult) Grammar(name string) (*ir.GrammarSpec, error) {
	if name == "" {
		if len(r.Grammars) != 1 {
			return nil, &LoadError{
				Code:    ErrCodeGrammarNotFound,
				Message: fmt.Sprintf("--grammar is required: %d grammars loaded", len(r.Grammars)),
			}
		}
		return &r.Grammars[0], nil
	}
	for i := range r.Grammars {
		if r.Grammars[i].Name == name {
			return &r.Grammars[i], nil
		}
	}
	return nil, &LoadError{Code: ErrCodeGrammarNotFound, Message: fmt.Sprintf("grammar %q not found", name)}
}

// LoadError represents an error that occurred during grammar loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGrammars loads every grammar declared under "grammar" in the CUE
// package in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadGrammars(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("grammars directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing grammars directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	// Check for load errors
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	// Build value from instance
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	grammarsVal := value.LookupPath(cue.ParsePath("grammar"))
	if grammarsVal.Exists() {
		iter, iterErr := grammarsVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating grammars: %v", iterErr)})
			return result, errs
		}
		for iter.Next() {
			spec, loadErr := compiler.LoadGrammar(iter.Value())
			if loadErr != nil {
				errs = append(errs, convertCompileError(loadErr, "grammar."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Grammars = append(result.Grammars, *spec)
		}
	}

	// Check if we found anything
	if len(result.Grammars) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no grammars found"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    compileErr.Code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Grammar errors reuse the compiler's E2xx codes.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeScanError       = "E002" // Directory scan error
	ErrCodeNoFiles         = "E003" // No CUE files found
	ErrCodeLoadFailed      = "E004" // CUE load failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE build failed
	ErrCodeWriteFailed     = "E007" // File write error
	ErrCodeGrammarNotFound = "E008" // --grammar does not name a loaded grammar
	ErrCodeInvalidInput    = "E009" // Entropy input could not be read
	ErrCodeStore           = "E010" // Database error
	ErrCodeAnalysis        = "E011" // Analysis warning under --strict
)

// loadedGrammar is one grammar compiled and ready to generate from.
type loadedGrammar struct {
	Spec     *ir.GrammarSpec
	Compiled *compiler.Compiled
	Engine   *engine.Engine
	Record   store.Grammar
}

// loadEngine loads the grammars in dir, compiles the named one and builds
// its engine. Errors are *LoadError or *compiler.CompileError.
func loadEngine(dir, name string, logger *slog.Logger, engineOpts ...engine.Option) (*loadedGrammar, error) {
	result, errs := LoadGrammars(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	spec, err := result.Grammar(name)
	if err != nil {
		return nil, err
	}
	return buildEngine(spec, logger, engineOpts...)
}

func buildEngine(spec *ir.GrammarSpec, logger *slog.Logger, engineOpts ...engine.Option) (*loadedGrammar, error) {
	compiled, err := compiler.Compile(spec, compiler.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	record, err := store.NewGrammar(*spec)
	if err != nil {
		return nil, err
	}
	opts := append([]engine.Option{engine.WithLogger(logger)}, engineOpts...)
	return &loadedGrammar{
		Spec:     spec,
		Compiled: compiled,
		Engine:   engine.New(compiled.Normalized, compiled.Constraints, opts...),
		Record:   record,
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
