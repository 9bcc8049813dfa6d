// Command tcc is the compiler's CLI driver: read input, lex/parse,
// type check, build and optimize SSA, select and allocate machine code,
// and emit ARM assembly, mapping every failure mode to the exit codes
// SPEC_FULL.md §6 names. Grounded in shape on
// kanso-lang-kanso/cmd/kanso-cli/main.go's read-parse-report-exit
// pipeline, generalized with github.com/spf13/cobra for the richer
// flag surface (-S, -o, -O, -v, -h) this compiler needs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/clog"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/emit"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/isel"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/postalloc"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/regalloc"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/diag"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/parser"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/typeck"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa/pass"
)

// Exit codes, per SPEC_FULL.md §6.
const (
	exitOK          = 0
	exitSystemError = 1
	exitParseError  = 2
	exitTypeError   = 3
	exitCodegenError = 4
)

// exitError carries a specific exit code out of RunE without cobra's
// default "Error: ..." re-print (the relevant message has already gone
// to stderr via the diagnostics reporter or a plain fmt.Fprintln).
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// config mirrors CompilerConfig (SPEC_FULL.md §3.4).
type config struct {
	input      string
	output     string
	optLevel   int
	assemblyOnly bool
	verbose    bool
}

func main() {
	cfg := &config{}
	root := newRootCommand(cfg)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitSystemError)
	}
	os.Exit(exitOK)
}

func newRootCommand(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tcc INPUT",
		Short:         "Compile a source file to 32-bit ARM assembly",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.input = args[0]
			clog.SetVerbose(cfg.verbose)
			return run(cfg)
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&cfg.assemblyOnly, "assembly", "S", false, "emit assembly (accepted and ignored: assembly is the only output mode)")
	flags.StringVarP(&cfg.output, "output", "o", "", "output path (default: standard output)")
	flags.IntVarP(&cfg.optLevel, "opt", "O", 0, "optimization level (0 disables the optional SSA passes)")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "raise log verbosity")
	return cmd
}

// run executes the full pipeline, returning an *exitError carrying the
// exact SPEC_FULL.md §6 exit code on any failure.
func run(cfg *config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Wrap with github.com/pkg/errors so the single recover boundary
			// for every pass below it (§7: "failure to encode an immediate,
			// an unknown tag, ... all terminate compilation with a
			// diagnostic message identifying the pass and offending
			// construct") prints a stack trace pointing at the panicking
			// pass, not just the bare panic value.
			wrapped := pkgerrors.Wrap(asError(r), "internal compiler error")
			fmt.Fprintf(os.Stderr, "%+v\n", wrapped)
			err = &exitError{exitCodegenError}
		}
	}()

	src, readErr := os.ReadFile(cfg.input)
	if readErr != nil {
		fmt.Fprintf(os.Stderr, "tcc: cannot open %s: %v\n", cfg.input, readErr)
		return &exitError{exitSystemError}
	}

	unit, parseErr := parser.ParseString(cfg.input, string(src))
	if parseErr != nil {
		reportParseError(cfg.input, string(src), parseErr)
		return &exitError{exitParseError}
	}
	prog := parser.Convert(unit)

	rep := diag.NewReporter(cfg.input, string(src))
	if typeErr := typeck.Check(prog, rep); typeErr != nil {
		return &exitError{exitTypeError}
	}

	ssaProg := ssa.BuildProgram(prog)
	pass.NewManager(cfg.optLevel).Run(ssaProg)

	mp := isel.Select(ssaProg, isel.Options{})
	regalloc.Run(mp)
	postalloc.Run(mp)

	out := os.Stdout
	if cfg.output != "" {
		f, createErr := os.Create(cfg.output)
		if createErr != nil {
			fmt.Fprintf(os.Stderr, "tcc: cannot open %s: %v\n", cfg.output, createErr)
			return &exitError{exitSystemError}
		}
		defer f.Close()
		out = f
	}
	emit.Emit(out, mp, emit.DefaultOptions())
	return nil
}

// asError normalizes a recovered panic value to an error. typeck.Check
// recovers its own *Error panics and returns them as a normal error, so by
// the time a panic reaches this boundary it is always one of the plain
// strings the ssa/emit packages pass to panic() on an unreachable case;
// pkgerrors.Wrap needs an error to attach its stack trace to either way.
func asError(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return fmt.Errorf("%v", r)
}

// reportParseError renders a participle syntax error through the shared
// diagnostics reporter, falling back to a plain message for any other
// error shape the parser might surface.
func reportParseError(filename, src string, err error) {
	rep := diag.NewReporter(filename, src)
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		rep.Report(diag.Diagnostic{
			Level:    diag.Error,
			Message:  perr.Message(),
			Position: diag.Position{Filename: filename, Line: pos.Line, Column: pos.Column, Offset: pos.Offset},
		})
		return
	}
	fmt.Fprintf(os.Stderr, "tcc: parse error: %v\n", err)
}
