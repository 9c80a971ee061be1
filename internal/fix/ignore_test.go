package fix

import (
	"testing"

	"stanlsp/internal/diag"
)

func diagAt(line, start, end int) diag.Diagnostic {
	return diag.Diagnostic{
		Range:   diag.Range{Start: diag.Position{Line: line, Character: start}, End: diag.Position{Line: line, Character: end}},
		Message: "Undefined variable: $x",
		Source:  diag.SourceTag,
	}
}

func TestIgnoreLinePreservesIndentation(t *testing.T) {
	text := "<?php\nfunction f() {\n    bar();\n}\n"
	fix, ok := NewIgnoreLine("").Generate(text, diagAt(2, 4, 10))
	if !ok {
		t.Fatal("expected a fix")
	}
	if fix.Title != IgnoreTitle || !fix.IsPreferred {
		t.Fatalf("unexpected fix metadata %+v", fix)
	}
	if len(fix.Edits) != 1 {
		t.Fatalf("expected one edit, got %d", len(fix.Edits))
	}
	edit := fix.Edits[0]
	if edit.Range.Start != (diag.Position{Line: 2}) || !edit.Range.Empty() {
		t.Fatalf("edit must insert at the start of the flagged line, got %s", edit.Range)
	}
	if edit.NewText != "    // @phpstan-ignore-next-line\n" {
		t.Fatalf("NewText = %q", edit.NewText)
	}

	out, err := Apply(text, fix.Edits)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "<?php\nfunction f() {\n    // @phpstan-ignore-next-line\n    bar();\n}\n"
	if out != want {
		t.Fatalf("got %q\nwant %q", out, want)
	}
}

func TestIgnoreLineKeepsCRLF(t *testing.T) {
	text := "<?php\r\n\tfoo();\r\n"
	fix, ok := NewIgnoreLine("@custom").Generate(text, diagAt(1, 1, 7))
	if !ok {
		t.Fatal("expected a fix")
	}
	if got := fix.Edits[0].NewText; got != "\t// @custom\r\n" {
		t.Fatalf("NewText = %q", got)
	}
}

func TestIgnoreLineOutOfRange(t *testing.T) {
	if _, ok := NewIgnoreLine("").Generate("<?php\n", diagAt(7, 0, 0)); ok {
		t.Fatal("no fix for a line outside the text")
	}
}

func TestForLineMatchesStartLineOnly(t *testing.T) {
	text := "a\nb\nc\n"
	multi := diag.Diagnostic{Range: diag.Range{Start: diag.Position{Line: 0}, End: diag.Position{Line: 2}}}
	diags := []diag.Diagnostic{diagAt(1, 0, 1), multi, diagAt(1, 0, 1)}

	fixes := ForLine(NewIgnoreLine(""), text, diags, 1)
	if len(fixes) != 2 {
		t.Fatalf("expected 2 fixes for line 1, got %d", len(fixes))
	}
	if got := ForLine(NewIgnoreLine(""), text, diags, 2); len(got) != 0 {
		t.Fatalf("range overlap must not produce a fix, got %d", len(got))
	}
}
