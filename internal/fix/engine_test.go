package fix

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stanlsp/internal/diag"
)

func pos(line, char int) diag.Position {
	return diag.Position{Line: line, Character: char}
}

func TestApplySimultaneousEdits(t *testing.T) {
	text := "let x = 1;\nlet y = 2;\n"
	edits := []Edit{
		{Range: diag.Range{Start: pos(1, 0), End: pos(1, 3)}, NewText: "const"},
		{Range: diag.Range{Start: pos(0, 0), End: pos(0, 3)}, NewText: "var"},
		{Range: diag.Range{Start: pos(0, 0), End: pos(0, 0)}, NewText: "// a\n"},
	}
	got, err := Apply(text, edits)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := "// a\nvar x = 1;\nconst y = 2;\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyRejectsOverlapAndOutOfRange(t *testing.T) {
	text := "abc\n"
	overlap := []Edit{
		{Range: diag.Range{Start: pos(0, 0), End: pos(0, 2)}, NewText: "x"},
		{Range: diag.Range{Start: pos(0, 1), End: pos(0, 3)}, NewText: "y"},
	}
	if _, err := Apply(text, overlap); err == nil {
		t.Fatal("expected overlap error")
	}
	if _, err := Apply(text, []Edit{{Range: diag.Range{Start: pos(5, 0), End: pos(5, 0)}}}); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestApplyCountsUTF16Columns(t *testing.T) {
	text := "😀ab\n"
	got, err := Apply(text, []Edit{{Range: diag.Range{Start: pos(0, 2), End: pos(0, 3)}, NewText: "X"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "😀Xb\n" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyFixesSkipsDuplicates(t *testing.T) {
	text := "<?php\n  foo();\n"
	gen := NewIgnoreLine("")
	d := diagAt(1, 2, 8)
	f1, _ := gen.Generate(text, d)
	f2, _ := gen.Generate(text, d)

	res, err := ApplyFixes(text, []Fix{f1, f2}, ApplyOptions{Mode: ApplyModeAll})
	if err != nil {
		t.Fatalf("ApplyFixes: %v", err)
	}
	if len(res.Applied) != 1 || len(res.Skipped) != 1 {
		t.Fatalf("applied=%d skipped=%d", len(res.Applied), len(res.Skipped))
	}
	if res.Skipped[0].Reason != "duplicates an applied fix" {
		t.Fatalf("reason = %q", res.Skipped[0].Reason)
	}
	if want := "<?php\n  // @phpstan-ignore-next-line\n  foo();\n"; res.Text != want {
		t.Fatalf("got %q", res.Text)
	}
}

func TestApplyFixesSelectByID(t *testing.T) {
	text := "a\nb\nc\n"
	gen := NewIgnoreLine("")
	withCode := func(line int, code string) diag.Diagnostic {
		d := diagAt(line, 0, 1)
		d.Code = code
		return d
	}
	f0, _ := gen.Generate(text, withCode(0, "variable.undefined"))
	f1, _ := gen.Generate(text, withCode(1, "function.notFound"))
	f2, _ := gen.Generate(text, withCode(2, "variable.undefined"))

	res, err := ApplyFixes(text, []Fix{f0, f1, f2}, ApplyOptions{Mode: ApplyModeID, TargetID: IgnoreID("variable.undefined")})
	if err != nil {
		t.Fatal(err)
	}
	want := "// @phpstan-ignore-next-line\na\nb\n// @phpstan-ignore-next-line\nc\n"
	if res.Text != want || len(res.Applied) != 2 {
		t.Fatalf("got %q (%d applied)", res.Text, len(res.Applied))
	}

	_, err = ApplyFixes(text, []Fix{f0}, ApplyOptions{Mode: ApplyModeID, TargetID: "missing"})
	if !errors.Is(err, ErrNoFixes) {
		t.Fatalf("expected ErrNoFixes, got %v", err)
	}
}

func TestApplyFixesOnceTakesFirstByPosition(t *testing.T) {
	text := "a\nb\n"
	gen := NewIgnoreLine("")
	f0, _ := gen.Generate(text, diagAt(0, 0, 1))
	f1, _ := gen.Generate(text, diagAt(1, 0, 1))

	res, err := ApplyFixes(text, []Fix{f1, f0}, ApplyOptions{Mode: ApplyModeOnce})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "// @phpstan-ignore-next-line\na\nb\n" || !res.Changed() {
		t.Fatalf("got %q", res.Text)
	}
}

func TestParseApplyMode(t *testing.T) {
	for in, want := range map[string]ApplyMode{"once": ApplyModeOnce, "all": ApplyModeAll} {
		got, err := ParseApplyMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseApplyMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseApplyMode("id"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.php")
	if err := os.WriteFile(path, []byte("<?php\necho $x;\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, _ := NewIgnoreLine("").Generate("<?php\necho $x;\n", diagAt(1, 0, 9))
	if _, err := ApplyFile(path, []Fix{f}, ApplyOptions{Mode: ApplyModeAll}); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<?php\n// @phpstan-ignore-next-line\necho $x;\n" {
		t.Fatalf("file = %q", data)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode not preserved: %v", info.Mode())
	}
}

func TestInsertTextOptions(t *testing.T) {
	d := diagAt(0, 0, 1)
	f := InsertText("Add", pos(0, 0), "x", WithID("add"), Preferred(), For(d))
	if f.ID != "add" || !f.IsPreferred || f.Diagnostic.Message != d.Message || f.Kind.LSP() != "quickfix" {
		t.Fatalf("unexpected fix %+v", f)
	}
}
