package diag

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestMapTrimsSurroundingWhitespace(t *testing.T) {
	text := "<?php\n   foo();   \n"
	got := Map([]RawError{{Line: 2, Message: "boom"}}, text, true)
	if len(got) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(got))
	}
	want := Range{
		Start: Position{Line: 1, Character: 3},
		End:   Position{Line: 1, Character: 9},
	}
	if got[0].Range != want {
		t.Fatalf("unexpected range: %s", got[0].Range)
	}
	if got[0].Message != "boom" || got[0].Source != SourceTag {
		t.Fatalf("unexpected diagnostic: %+v", got[0])
	}
}

func TestMapFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		known bool
		line  int
		want  Range
	}{
		{
			name:  "text unavailable",
			text:  "",
			known: false,
			line:  4,
			want:  Range{Start: Position{Line: 3}, End: Position{Line: 3}},
		},
		{
			name:  "line past end",
			text:  "a\nb\n",
			known: true,
			line:  10,
			want:  Range{Start: Position{Line: 9}, End: Position{Line: 9}},
		},
		{
			name:  "blank line spans whole line",
			text:  "a\n    \nb",
			known: true,
			line:  2,
			want:  Range{Start: Position{Line: 1}, End: Position{Line: 1, Character: 4}},
		},
		{
			name:  "empty line",
			text:  "a\n\nb",
			known: true,
			line:  2,
			want:  Range{Start: Position{Line: 1}, End: Position{Line: 1}},
		},
		{
			name:  "line zero clamps to first line",
			text:  "  x",
			known: true,
			line:  0,
			want:  Range{Start: Position{Line: 0}, End: Position{Line: 0}},
		},
		{
			name:  "crlf line ending is trimmed",
			text:  "\tfoo();\r\nbar",
			known: true,
			line:  1,
			want:  Range{Start: Position{Line: 0, Character: 1}, End: Position{Line: 0, Character: 7}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Map([]RawError{{Line: tt.line, Message: "m"}}, tt.text, tt.known)
			if len(got) != 1 {
				t.Fatalf("expected 1 diagnostic, got %d", len(got))
			}
			if got[0].Range != tt.want {
				t.Fatalf("got %s, want %s", got[0].Range, tt.want)
			}
		})
	}
}

func TestMapCountsUTF16Units(t *testing.T) {
	text := "  $s = '🙂';  "
	got := Map([]RawError{{Line: 1}}, text, true)
	if got[0].Range.Start.Character != 2 {
		t.Fatalf("unexpected start: %d", got[0].Range.Start.Character)
	}
	// the emoji is a surrogate pair
	if want := 2 + len("$s = '';") + 2; got[0].Range.End.Character != want {
		t.Fatalf("unexpected end: %d, want %d", got[0].Range.End.Character, want)
	}
}

func TestMapPreservesAnalyzerOrder(t *testing.T) {
	errs := []RawError{{Line: 3, Message: "c"}, {Line: 1, Message: "a"}, {Line: 2, Message: "b"}}
	got := Map(errs, "x\ny\nz", true)
	for i, e := range errs {
		if got[i].Message != e.Message {
			t.Fatalf("position %d: got %q, want %q", i, got[i].Message, e.Message)
		}
	}
}

func TestMapNeverPanicsAndStaysInsideLine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOfN(rapid.StringMatching(`[ \ta-z();]{0,12}`), 0, 8).Draw(t, "lines")
		text := strings.Join(lines, "\n")
		lineNo := rapid.IntRange(-2, 12).Draw(t, "line")
		got := Map([]RawError{{Line: lineNo, Message: "m"}}, text, true)
		if len(got) != 1 {
			t.Fatalf("expected one diagnostic")
		}
		r := got[0].Range
		if r.Start.Line != r.End.Line {
			t.Fatalf("range spans lines: %s", r)
		}
		if r.Start.Character > r.End.Character {
			t.Fatalf("start after end: %s", r)
		}
		all := strings.Split(text, "\n")
		if r.Start.Line < len(all) && lineNo >= 1 {
			if r.End.Character > len(all[r.Start.Line]) {
				t.Fatalf("end past line length: %s", r)
			}
		} else if !r.Empty() {
			t.Fatalf("out of range line must be zero-width: %s", r)
		}
	})
}

func TestLineIndent(t *testing.T) {
	text := "<?php\n    bar();\n\tbaz();"
	if got := LineIndent(text, 1); got != "    " {
		t.Fatalf("unexpected indent %q", got)
	}
	if got := LineIndent(text, 2); got != "\t" {
		t.Fatalf("unexpected indent %q", got)
	}
	if got := LineIndent(text, 9); got != "" {
		t.Fatalf("expected empty indent, got %q", got)
	}
}
