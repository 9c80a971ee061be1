package lsp

import (
	"testing"

	"stanlsp/internal/diag"
)

func TestApplyChangesIncremental(t *testing.T) {
	text := "<?php\necho 'a';\n"
	got := applyChanges(text, []textDocumentContentChangeEvent{
		{
			Range: &lspRange{Start: position{Line: 1, Character: 6}, End: position{Line: 1, Character: 7}},
			Text:  "b",
		},
		{
			Range: &lspRange{Start: position{Line: 2, Character: 0}, End: position{Line: 2, Character: 0}},
			Text:  "foo();\n",
		},
	})
	if want := "<?php\necho 'b';\nfoo();\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyChangesFullReplace(t *testing.T) {
	got := applyChanges("old", []textDocumentContentChangeEvent{{Text: "new"}})
	if got != "new" {
		t.Fatalf("got %q", got)
	}
}

func TestOffsetForPositionCountsUTF16(t *testing.T) {
	text := "a😀b\nx"
	// The emoji is two UTF-16 units and four bytes.
	if got := offsetForPosition(text, position{Line: 0, Character: 3}); got != 5 {
		t.Fatalf("expected offset 5, got %d", got)
	}
	if got := offsetForPosition(text, position{Line: 0, Character: 99}); got != 6 {
		t.Fatalf("expected clamp to line end 6, got %d", got)
	}
	if got := offsetForPosition(text, position{Line: 5}); got != len(text) {
		t.Fatalf("expected clamp to text end, got %d", got)
	}
}

func TestToLSPPositionClampsNegative(t *testing.T) {
	got := toLSPPosition(diag.Position{Line: -1, Character: 4})
	if got.Line != 0 || got.Character != 4 {
		t.Fatalf("unexpected position: %+v", got)
	}
}
