// Package fix builds and applies text edits that resolve diagnostics.
package fix

import "stanlsp/internal/diag"

// Kind classifies a fix for the editor.
type Kind uint8

const KindQuickFix Kind = 0

// LSP returns the code action kind string.
func (Kind) LSP() string {
	return "quickfix"
}

// Edit replaces Range with NewText.
type Edit struct {
	Range   diag.Range
	NewText string
}

// Fix is a titled group of edits resolving one diagnostic.
type Fix struct {
	ID          string
	Title       string
	Kind        Kind
	IsPreferred bool
	Diagnostic  diag.Diagnostic
	Edits       []Edit
}
