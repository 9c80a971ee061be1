package fix

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf16"

	"stanlsp/internal/diag"
)

// ErrNoFixes is returned when no fixes were applied.
var ErrNoFixes = errors.New("no applicable fixes found")

// ApplyMode determines selection strategy for fixes.
type ApplyMode uint8

const (
	// ApplyModeOnce applies the preferred fix, or the first one by position.
	ApplyModeOnce ApplyMode = iota
	// ApplyModeAll applies every non-conflicting fix.
	ApplyModeAll
	// ApplyModeID applies every fix whose ID equals TargetID.
	ApplyModeID
)

// ParseApplyMode accepts "once" and "all".
func ParseApplyMode(s string) (ApplyMode, error) {
	switch s {
	case "once":
		return ApplyModeOnce, nil
	case "all":
		return ApplyModeAll, nil
	default:
		return 0, fmt.Errorf("unknown fix mode %q (must be once or all)", s)
	}
}

// ApplyOptions configures how fixes are selected.
type ApplyOptions struct {
	Mode     ApplyMode
	TargetID string
}

// AppliedFix records a successfully applied fix.
type AppliedFix struct {
	ID        string
	Title     string
	Message   string
	Line      int
	EditCount int
}

// SkippedFix captures a skipped or failed fix with a reason.
type SkippedFix struct {
	ID     string
	Title  string
	Reason string
}

// ApplyResult aggregates applied fixes, skipped ones and the new text.
type ApplyResult struct {
	Applied []AppliedFix
	Skipped []SkippedFix
	Text    string
}

// Changed reports whether any fix modified the text.
func (r *ApplyResult) Changed() bool {
	return len(r.Applied) > 0
}

type candidate struct {
	fix   Fix
	order int
}

// ApplyFixes selects a subset of fixes according to opts and applies them
// to text. Fixes conflicting with, or duplicating, an already selected fix
// are skipped.
func ApplyFixes(text string, fixes []Fix, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{
		Applied: make([]AppliedFix, 0),
		Skipped: make([]SkippedFix, 0),
		Text:    text,
	}

	candidates := make([]candidate, 0, len(fixes))
	for i, f := range fixes {
		if len(f.Edits) == 0 {
			result.Skipped = append(result.Skipped, SkippedFix{ID: f.ID, Title: f.Title, Reason: "fix has no edits"})
			continue
		}
		candidates = append(candidates, candidate{fix: f, order: i})
	}
	if len(candidates) == 0 {
		return result, ErrNoFixes
	}
	sortCandidates(candidates)

	selected, skipped := selectCandidates(candidates, opts)
	result.Skipped = append(result.Skipped, skipped...)

	var edits []Edit
	for _, cand := range selected {
		if reason := admit(edits, cand.fix.Edits); reason != "" {
			result.Skipped = append(result.Skipped, SkippedFix{ID: cand.fix.ID, Title: cand.fix.Title, Reason: reason})
			continue
		}
		if _, err := Apply(text, append(append([]Edit(nil), edits...), cand.fix.Edits...)); err != nil {
			result.Skipped = append(result.Skipped, SkippedFix{ID: cand.fix.ID, Title: cand.fix.Title, Reason: err.Error()})
			continue
		}
		edits = append(edits, cand.fix.Edits...)
		result.Applied = append(result.Applied, AppliedFix{
			ID:        cand.fix.ID,
			Title:     cand.fix.Title,
			Message:   cand.fix.Diagnostic.Message,
			Line:      cand.fix.Diagnostic.StartLine(),
			EditCount: len(cand.fix.Edits),
		})
	}
	if len(result.Applied) == 0 {
		return result, ErrNoFixes
	}

	out, err := Apply(text, edits)
	if err != nil {
		return result, err
	}
	result.Text = out
	return result, nil
}

// ApplyFile applies fixes to the file at path and rewrites it in place.
func ApplyFile(path string, fixes []Fix, opts ApplyOptions) (*ApplyResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	result, err := ApplyFixes(string(data), fixes, opts)
	if err != nil {
		return result, err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, []byte(result.Text), mode); err != nil {
		return result, fmt.Errorf("write %s: %w", path, err)
	}
	return result, nil
}

// sortCandidates orders fixes by position of their first edit, then
// insertion order, preference, ID and title.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].fix.Edits[0].Range, candidates[j].fix.Edits[0].Range
		if ri.Start != rj.Start {
			return before(ri.Start, rj.Start)
		}
		if ri.End != rj.End {
			return before(ri.End, rj.End)
		}
		if candidates[i].order != candidates[j].order {
			return candidates[i].order < candidates[j].order
		}
		if candidates[i].fix.IsPreferred != candidates[j].fix.IsPreferred {
			return candidates[i].fix.IsPreferred
		}
		if candidates[i].fix.ID != candidates[j].fix.ID {
			return candidates[i].fix.ID < candidates[j].fix.ID
		}
		return candidates[i].fix.Title < candidates[j].fix.Title
	})
}

func selectCandidates(candidates []candidate, opts ApplyOptions) ([]candidate, []SkippedFix) {
	switch opts.Mode {
	case ApplyModeID:
		var matched []candidate
		for _, cand := range candidates {
			if cand.fix.ID == opts.TargetID {
				matched = append(matched, cand)
			}
		}
		if len(matched) == 0 {
			return nil, []SkippedFix{{ID: opts.TargetID, Reason: "fix id not found"}}
		}
		return matched, nil
	case ApplyModeAll:
		return candidates, nil
	case ApplyModeOnce:
		for _, cand := range candidates {
			if cand.fix.IsPreferred {
				return []candidate{cand}, nil
			}
		}
		return candidates[:1], nil
	default:
		return nil, nil
	}
}

// admit returns why next cannot join the already selected edits, or "".
func admit(selected, next []Edit) string {
	for _, prev := range selected {
		for _, cand := range next {
			if prev == cand {
				return "duplicates an applied fix"
			}
			if rangesConflict(prev.Range, cand.Range) {
				return "conflicts with previously applied edits"
			}
		}
	}
	return ""
}

// rangesConflict reports whether two ranges overlap as half-open intervals.
// Two insertions never conflict; an insertion conflicts with a non-empty
// range that strictly contains its position.
func rangesConflict(a, b diag.Range) bool {
	if a.Empty() && b.Empty() {
		return false
	}
	if a.Empty() {
		return !before(a.Start, b.Start) && before(a.Start, b.End)
	}
	if b.Empty() {
		return !before(b.Start, a.Start) && before(b.Start, a.End)
	}
	return before(a.Start, b.End) && before(b.Start, a.End)
}

func before(a, b diag.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}

type resolvedEdit struct {
	start, end int
	order      int
	edit       Edit
}

// Apply applies edits to text. Every range refers to the original text, so
// edits are applied as if simultaneously. Insertions at a position go before
// a replacement starting there and keep their relative order.
func Apply(text string, edits []Edit) (string, error) {
	resolved := make([]resolvedEdit, 0, len(edits))
	for i, e := range edits {
		start, ok := offsetOf(text, e.Range.Start)
		if !ok {
			return "", fmt.Errorf("edit %s out of range", e.Range)
		}
		end, ok := offsetOf(text, e.Range.End)
		if !ok || end < start {
			return "", fmt.Errorf("edit %s out of range", e.Range)
		}
		resolved = append(resolved, resolvedEdit{start: start, end: end, order: i, edit: e})
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].start != resolved[j].start {
			return resolved[i].start < resolved[j].start
		}
		if resolved[i].end != resolved[j].end {
			return resolved[i].end < resolved[j].end
		}
		return resolved[i].order < resolved[j].order
	})

	var sb strings.Builder
	last := 0
	for _, r := range resolved {
		if r.start < last {
			return "", fmt.Errorf("edit %s overlaps another edit", r.edit.Range)
		}
		sb.WriteString(text[last:r.start])
		sb.WriteString(r.edit.NewText)
		last = r.end
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

// offsetOf converts a line and UTF-16 column into a byte offset. Columns
// past the end of the line clamp to the line end.
func offsetOf(text string, pos diag.Position) (int, bool) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, false
	}
	off := 0
	for i := 0; i < pos.Line; i++ {
		idx := strings.IndexByte(text[off:], '\n')
		if idx < 0 {
			return 0, false
		}
		off += idx + 1
	}
	lineEnd := len(text)
	if idx := strings.IndexByte(text[off:], '\n'); idx >= 0 {
		lineEnd = off + idx
	}
	units := 0
	for i, r := range text[off:lineEnd] {
		if units >= pos.Character {
			return off + i, true
		}
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		units += w
	}
	return lineEnd, true
}
