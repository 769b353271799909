package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgfuzz/internal/engine"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Grammar  string
	Start    string
	Input    string // file holding raw entropy bytes
	Hex      string
	Text     string
	Ceiling  int
	MaxSteps int
}

// Generation is the result of one derivation.
type Generation struct {
	Grammar  string `json:"grammar"`
	Start    string `json:"start"`
	Entropy  string `json:"entropy"` // hex
	Output   string `json:"output"`
	Consumed int    `json:"consumed"`
	Steps    int    `json:"steps"`
	Retries  int    `json:"retries"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <grammars-dir>",
		Short: "Derive one string from an entropy buffer",
		Long: `Derive one string from a grammar, driven by an entropy buffer.

The same grammar, start rule, entropy and ceiling always derive the same
string. Entropy comes from a file (--input), hex (--hex) or literal text
(--text); with none of them the buffer is empty and every choice takes
its first alternative.

Example:
  cfgfuzz generate ./grammars --grammar calc --start expr --hex 01ff02`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Grammar, "grammar", "", "grammar name (optional when the package declares one grammar)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start rule (defaults to the grammar's start)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "file to read entropy bytes from")
	cmd.Flags().StringVar(&opts.Hex, "hex", "", "entropy as hex")
	cmd.Flags().StringVar(&opts.Text, "text", "", "entropy as literal text")
	cmd.Flags().IntVar(&opts.Ceiling, "ceiling", engine.NoCeiling, "maximum output length in characters (0 for none)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", engine.DefaultMaxSteps, "derivation step limit")
	cmd.MarkFlagsMutuallyExclusive("input", "hex", "text")

	return cmd
}

func runGenerate(opts *GenerateOptions, grammarsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, formatter.Diagnostics())

	if opts.Ceiling < 0 {
		return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeInvalidInput, Message: "--ceiling must not be negative"})
	}
	entropy, err := readEntropy(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	lg, err := loadEngine(grammarsDir, opts.Grammar, logger, engine.WithMaxSteps(opts.MaxSteps))
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	start := opts.Start
	if start == "" {
		start = lg.Spec.Start
	}
	formatter.VerboseLog("Generating from %s.%s with %d entropy byte(s)", lg.Spec.Name, start, len(entropy))

	res, err := lg.Engine.GenerateResult(start, entropy, opts.Ceiling)
	if err != nil {
		return outputGenerateError(formatter, err)
	}

	gen := Generation{
		Grammar:  lg.Spec.Name,
		Start:    start,
		Entropy:  hex.EncodeToString(entropy),
		Output:   res.Output,
		Consumed: res.Consumed,
		Steps:    res.Steps,
		Retries:  res.Retries,
	}
	if formatter.Format == "json" {
		return formatter.Success(gen)
	}

	fmt.Fprintln(formatter.Writer, gen.Output)
	formatter.VerboseLog("consumed %d of %d byte(s) in %d step(s)", gen.Consumed, len(entropy), gen.Steps)
	return nil
}

// readEntropy returns the entropy buffer selected by the flags.
func readEntropy(opts *GenerateOptions) ([]byte, error) {
	switch {
	case opts.Input != "":
		data, err := os.ReadFile(opts.Input)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("reading entropy: %v", err)}
		}
		return data, nil
	case opts.Hex != "":
		data, err := hex.DecodeString(strings.TrimSpace(opts.Hex))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("decoding --hex: %v", err)}
		}
		return data, nil
	case opts.Text != "":
		return []byte(opts.Text), nil
	default:
		return nil, nil
	}
}

// outputGenerateError reports a failed derivation. Generation errors are
// results, not command errors: they exit 1 with the generation code.
func outputGenerateError(formatter *OutputFormatter, err error) error {
	if engine.CodeOf(err) == "" {
		return formatter.Fail(ExitCommandError, err)
	}
	return formatter.Fail(ExitFailure, err)
}
