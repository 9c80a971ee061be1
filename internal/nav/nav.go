// Package nav moves between diagnostics across files in a fixed order.
package nav

import (
	"fmt"
	"sort"
	"strings"

	"stanlsp/internal/diag"
)

// Direction selects the jump direction.
type Direction uint8

const (
	Next Direction = iota + 1
	Prev
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "next" and "prev" (or "previous").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "next":
		return Next, nil
	case "prev", "previous":
		return Prev, nil
	default:
		return 0, fmt.Errorf("invalid jump direction %q (expected: next|prev)", s)
	}
}

// Target is where a jump lands.
type Target struct {
	URI        string
	Diagnostic diag.Diagnostic
}

// Range returns the selection to apply at the target.
func (t Target) Range() diag.Range {
	return t.Diagnostic.Range
}

// Reader is the read side of the diagnostic store.
type Reader interface {
	Get(uri string) []diag.Diagnostic
	ForEach(fn func(uri string, diags []diag.Diagnostic))
}

// Navigator computes jump targets from a store snapshot.
type Navigator struct {
	store Reader
}

// New returns a Navigator reading from store.
func New(store Reader) *Navigator {
	return &Navigator{store: store}
}

// Jump returns the diagnostic after (Next) or before (Prev) line in uri,
// moving on to the neighbouring file in URI order when uri has none left.
// The result is false only when no file has diagnostics.
//
// Within a file the first diagnostic in stored order that is past line wins;
// diagnostics are not re-sorted by position. Across files, Next from a file
// without diagnostics lands on the first file while Prev lands on the last.
func (n *Navigator) Jump(dir Direction, uri string, line int) (Target, bool) {
	for _, d := range n.store.Get(uri) {
		if (dir == Next && d.StartLine() > line) || (dir == Prev && d.StartLine() < line) {
			return Target{URI: uri, Diagnostic: d}, true
		}
	}

	byURI := make(map[string][]diag.Diagnostic)
	n.store.ForEach(func(u string, diags []diag.Diagnostic) {
		if len(diags) > 0 {
			byURI[u] = diags
		}
	})
	if len(byURI) == 0 {
		return Target{}, false
	}
	uris := make([]string, 0, len(byURI))
	for u := range byURI {
		uris = append(uris, u)
	}
	sort.Strings(uris)

	idx := -1
	if i := sort.SearchStrings(uris, uri); i < len(uris) && uris[i] == uri {
		idx = i
	}

	var target string
	switch {
	case dir == Next:
		target = uris[(idx+1)%len(uris)]
	case idx == -1:
		target = uris[len(uris)-1]
	default:
		target = uris[(idx-1+len(uris))%len(uris)]
	}
	return Target{URI: target, Diagnostic: byURI[target][0]}, true
}
