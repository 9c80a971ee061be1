package fix

import (
	"strings"

	"stanlsp/internal/diag"
)

const (
	// DefaultDirective suppresses the analyzer error on the following line.
	DefaultDirective = "@phpstan-ignore-next-line"
	// IgnoreTitle is the title of the ignore quick fix.
	IgnoreTitle = "Ignore PHPStan error"
)

// IgnoreID identifies ignore fixes by the analyzer identifier they
// suppress, so every error of one kind can be selected with ApplyModeID.
func IgnoreID(identifier string) string {
	if identifier == "" {
		return "ignore"
	}
	return "ignore:" + identifier
}

// Generator produces a fix for a diagnostic given the file's current text.
type Generator interface {
	Generate(text string, d diag.Diagnostic) (Fix, bool)
}

// IgnoreLine inserts a comment carrying Directive above the flagged line,
// indented like that line.
type IgnoreLine struct {
	Directive string
}

// NewIgnoreLine returns an IgnoreLine generator. An empty directive selects
// DefaultDirective.
func NewIgnoreLine(directive string) IgnoreLine {
	if directive == "" {
		directive = DefaultDirective
	}
	return IgnoreLine{Directive: directive}
}

// Generate returns false when the diagnostic's line is not in text.
func (g IgnoreLine) Generate(text string, d diag.Diagnostic) (Fix, bool) {
	line := d.StartLine()
	if _, ok := diag.LineAt(text, line); !ok {
		return Fix{}, false
	}
	directive := g.Directive
	if directive == "" {
		directive = DefaultDirective
	}
	newline := "\n"
	if strings.Contains(text, "\r\n") {
		newline = "\r\n"
	}
	insert := diag.LineIndent(text, line) + "// " + directive + newline
	return InsertText(IgnoreTitle, diag.Position{Line: line}, insert,
		WithID(IgnoreID(d.Code)),
		Preferred(),
		For(d),
	), true
}

// ForLine generates fixes for the diagnostics that start exactly on line.
func ForLine(g Generator, text string, diags []diag.Diagnostic, line int) []Fix {
	var out []Fix
	for _, d := range diags {
		if d.StartLine() != line {
			continue
		}
		if f, ok := g.Generate(text, d); ok {
			out = append(out, f)
		}
	}
	return out
}
