package watch

import (
	"fmt"
	"strings"

	"stanlsp/internal/docs"
)

// Mode selects which document events schedule a check.
type Mode uint8

const (
	ModeNever Mode = iota
	ModeOnSave
	ModeOnChange
)

func (m Mode) String() string {
	switch m {
	case ModeNever:
		return "never"
	case ModeOnSave:
		return "onSave"
	case ModeOnChange:
		return "onContentChange"
	default:
		return "unknown"
	}
}

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never":
		return ModeNever, nil
	case "onsave", "on-save", "save":
		return ModeOnSave, nil
	case "oncontentchange", "onchange", "on-change", "change":
		return ModeOnChange, nil
	default:
		return ModeOnSave, fmt.Errorf("invalid whenToRun %q (expected: never|onSave|onContentChange)", s)
	}
}

// EventSet is a small set of document event kinds.
type EventSet uint8

func eventBit(k docs.EventKind) EventSet {
	return 1 << EventSet(k)
}

// NewEventSet builds a set from kinds.
func NewEventSet(kinds ...docs.EventKind) EventSet {
	var s EventSet
	for _, k := range kinds {
		s |= eventBit(k)
	}
	return s
}

// Has reports whether k is in the set.
func (s EventSet) Has(k docs.EventKind) bool {
	return s&eventBit(k) != 0
}

// Kinds lists the members in lifecycle order.
func (s EventSet) Kinds() []docs.EventKind {
	var out []docs.EventKind
	for _, k := range []docs.EventKind{docs.EventOpen, docs.EventChange, docs.EventSave, docs.EventClose} {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s EventSet) String() string {
	kinds := s.Kinds()
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, k.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// RelevantEvents returns the events that schedule a check under mode.
// Close is never in the set: it only clears diagnostics and is handled in
// every mode.
func RelevantEvents(mode Mode) EventSet {
	switch mode {
	case ModeOnSave:
		return NewEventSet(docs.EventSave, docs.EventOpen)
	case ModeOnChange:
		return NewEventSet(docs.EventChange, docs.EventOpen)
	default:
		return 0
	}
}
