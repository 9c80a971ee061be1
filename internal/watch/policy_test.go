package watch

import (
	"testing"

	"stanlsp/internal/docs"
)

func TestRelevantEvents(t *testing.T) {
	tests := []struct {
		mode Mode
		want []docs.EventKind
	}{
		{ModeNever, nil},
		{ModeOnSave, []docs.EventKind{docs.EventOpen, docs.EventSave}},
		{ModeOnChange, []docs.EventKind{docs.EventOpen, docs.EventChange}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			got := RelevantEvents(tt.mode)
			if want := NewEventSet(tt.want...); got != want {
				t.Fatalf("got %s, want %s", got, want)
			}
			if got.Has(docs.EventClose) {
				t.Fatal("close must never schedule a check")
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"never":           ModeNever,
		"onSave":          ModeOnSave,
		"onContentChange": ModeOnChange,
		"on-change":       ModeOnChange,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
