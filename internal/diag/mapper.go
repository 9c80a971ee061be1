package diag

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

// Map refines raw analyzer errors into diagnostics using the document text
// current at mapping time. known is false when the file is not open in
// memory; every diagnostic then falls back to a zero-width range.
// The output preserves analyzer order.
func Map(errs []RawError, text string, known bool) []Diagnostic {
	if len(errs) == 0 {
		return nil
	}
	var lines []string
	if known {
		lines = strings.Split(text, "\n")
	}
	out := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, Diagnostic{
			Range:    rangeForLine(lines, known, e.Line-1),
			Severity: SevError,
			Code:     e.Identifier,
			Source:   SourceTag,
			Message:  e.Message,
		})
	}
	return out
}

func rangeForLine(lines []string, known bool, line int) Range {
	if line < 0 {
		line = 0
		known = false
	}
	if !known || line >= len(lines) {
		return Range{
			Start: Position{Line: line},
			End:   Position{Line: line},
		}
	}
	start, end := contentColumns(lines[line])
	return Range{
		Start: Position{Line: line, Character: start},
		End:   Position{Line: line, Character: end},
	}
}

// contentColumns returns the UTF-16 columns bounding the non-whitespace
// content of line. Blank lines span the whole line.
func contentColumns(line string) (start, end int) {
	right := strings.TrimRightFunc(line, unicode.IsSpace)
	if right == "" {
		return 0, utf16Len(line)
	}
	body := strings.TrimLeftFunc(right, unicode.IsSpace)
	leading := right[:len(right)-len(body)]
	return utf16Len(leading), utf16Len(right)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}

// LineIndent returns the leading whitespace of the given 0-based line of text,
// or "" when the line does not exist.
func LineIndent(text string, line int) string {
	l, ok := LineAt(text, line)
	if !ok {
		return ""
	}
	return l[:len(l)-len(strings.TrimLeftFunc(l, unicode.IsSpace))]
}

// LineAt returns the raw text of the given 0-based line without its newline.
func LineAt(text string, line int) (string, bool) {
	if line < 0 {
		return "", false
	}
	for i := 0; i < line; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return "", false
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return text, true
}
