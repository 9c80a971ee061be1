package diag

import "fmt"

// SourceTag identifies the analyzer on every mapped diagnostic.
const SourceTag = "PHPStan"

// RawError is a single analyzer finding with line-level precision only.
type RawError struct {
	Line       int // 1-based
	Message    string
	Identifier string // analyzer error identifier, may be empty
}

type Position struct {
	Line      int // 0-based
	Character int // UTF-16 code units
}

type Range struct {
	Start Position
	End   Position
}

// Empty reports whether the range covers no characters.
func (r Range) Empty() bool {
	return r.Start == r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Character, r.End.Line, r.End.Character)
}

// Diagnostic is a RawError mapped onto the document text.
type Diagnostic struct {
	Range    Range
	Severity Severity
	Code     string
	Source   string
	Message  string
}

// StartLine returns the 0-based line the diagnostic starts on.
func (d Diagnostic) StartLine() int {
	return d.Range.Start.Line
}
