// Package diag renders positioned compiler diagnostics, grounded on
// kanso-lang-kanso/internal/errors.ErrorReporter's Rust-style framed output.
package diag

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
)

// Level is a diagnostic severity.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
	Help    Level = "help"
)

// Position is diag's own copy of ast.Position to avoid an import cycle
// between ast and diag (ast has no dependency on diag).
type Position ast.Position

// Diagnostic is a single structured message.
type Diagnostic struct {
	Level    Level
	Code     string
	Message  string
	Position Position
	Length   int
	Notes    []string
	HelpText string
}

// Reporter formats diagnostics against one file's source text.
type Reporter struct {
	filename string
	source   string
	lines    []string
}

// NewReporter builds a reporter scoped to a single source file.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, source: source, lines: strings.Split(source, "\n")}
}

// Report formats and prints a diagnostic to standard error.
func (r *Reporter) Report(d Diagnostic) {
	fmt.Fprint(os.Stderr, r.Format(d))
}

// Format renders a diagnostic exactly in the shape of
// ErrorReporter.FormatError: a colored header, a location line, up to one
// line of context before/after, a caret marker, then notes/help.
func (r *Reporter) Format(d Diagnostic) string {
	var b strings.Builder
	levelColor := r.levelColor(d.Level)
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if d.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", levelColor(string(d.Level)), d.Message)
	}

	width := lineNumberWidth(d.Position.Line)
	indent := strings.Repeat(" ", width)
	fmt.Fprintf(&b, "%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Position.Line, d.Position.Column)
	fmt.Fprintf(&b, "%s %s\n", indent, dim("|"))

	if d.Position.Line > 1 && d.Position.Line-1 <= len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", dim(pad(d.Position.Line-1, width)), dim("|"), r.lines[d.Position.Line-2])
	}
	if d.Position.Line >= 1 && d.Position.Line <= len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", bold(pad(d.Position.Line, width)), dim("|"), r.lines[d.Position.Line-1])
		fmt.Fprintf(&b, "%s %s %s\n", indent, dim("|"), r.marker(d.Position.Column, d.Length, d.Level))
	}
	if d.Position.Line >= 1 && d.Position.Line < len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", dim(pad(d.Position.Line+1, width)), dim("|"), r.lines[d.Position.Line])
	}

	for _, note := range d.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, dim("|"), noteColor("note:"), note)
	}
	if d.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, dim("|"), helpColor("help:"), d.HelpText)
	}
	b.WriteString("\n")
	return b.String()
}

func (r *Reporter) levelColor(l Level) func(a ...interface{}) string {
	switch l {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column, length int, level Level) string {
	if length <= 0 {
		length = 1
	}
	if column < 1 {
		column = 1
	}
	spaces := strings.Repeat(" ", column-1)
	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return spaces + markerColor(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		w = 3
	}
	return w
}

func pad(n, width int) string {
	return fmt.Sprintf("%*d", width, n)
}
