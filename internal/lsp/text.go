package lsp

import (
	"unicode/utf8"

	"fortio.org/safecast"

	"stanlsp/internal/diag"
	"stanlsp/internal/fix"
)

func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	if len(changes) == 0 {
		return text
	}
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := offsetForPosition(text, change.Range.End)
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetForPosition maps an LSP position (UTF-16 columns) to a byte offset,
// clamping to the end of the line or the text.
func offsetForPosition(text string, pos position) int {
	line := uint32(0)
	i := 0
	for i < len(text) && line < pos.Line {
		if text[i] == '\n' {
			line++
		}
		i++
	}
	if line < pos.Line {
		return len(text)
	}
	units := uint32(0)
	for i < len(text) && units < pos.Character {
		if text[i] == '\n' {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		need := uint32(1)
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		i += size
	}
	return i
}

func toLSPPosition(p diag.Position) position {
	line, err := safecast.Conv[uint32](p.Line)
	if err != nil {
		line = 0
	}
	char, err := safecast.Conv[uint32](p.Character)
	if err != nil {
		char = 0
	}
	return position{Line: line, Character: char}
}

func fromLSPPosition(p position) diag.Position {
	return diag.Position{Line: int(p.Line), Character: int(p.Character)}
}

func toLSPRange(r diag.Range) lspRange {
	return lspRange{Start: toLSPPosition(r.Start), End: toLSPPosition(r.End)}
}

func toLSPDiagnostic(d diag.Diagnostic) lspDiagnostic {
	return lspDiagnostic{
		Range:    toLSPRange(d.Range),
		Severity: d.Severity.LSP(),
		Code:     d.Code,
		Source:   d.Source,
		Message:  d.Message,
	}
}

func toLSPDiagnostics(diags []diag.Diagnostic) []lspDiagnostic {
	if len(diags) == 0 {
		return nil
	}
	out := make([]lspDiagnostic, len(diags))
	for i, d := range diags {
		out[i] = toLSPDiagnostic(d)
	}
	return out
}

func toCodeAction(uri string, f fix.Fix) codeAction {
	edits := make([]textEdit, len(f.Edits))
	for i, e := range f.Edits {
		edits[i] = textEdit{Range: toLSPRange(e.Range), NewText: e.NewText}
	}
	action := codeAction{
		Title:       f.Title,
		Kind:        f.Kind.LSP(),
		IsPreferred: f.IsPreferred,
		Edit:        &workspaceEdit{Changes: map[string][]textEdit{uri: edits}},
	}
	if f.Diagnostic.Message != "" {
		action.Diagnostics = []lspDiagnostic{toLSPDiagnostic(f.Diagnostic)}
	}
	return action
}
