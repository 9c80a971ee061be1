package diag

import (
	"slices"
	"sort"
	"sync"
)

// Store maps file URIs to the diagnostics of their last applied check.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]Diagnostic
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]Diagnostic)}
}

// ReplaceAll atomically swaps the diagnostics of uri. An empty list removes
// the entry.
func (s *Store) ReplaceAll(uri string, diags []Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(diags) == 0 {
		delete(s.entries, uri)
		return
	}
	s.entries[uri] = slices.Clone(diags)
}

// Get returns a copy of the diagnostics stored for uri.
func (s *Store) Get(uri string) []Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries[uri])
}

// Clear removes uri and reports whether it had diagnostics.
func (s *Store) Clear(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[uri]
	delete(s.entries, uri)
	return ok
}

// ClearAll empties the store and returns the URIs that were removed, sorted.
func (s *Store) ClearAll() []string {
	s.mu.Lock()
	prev := s.entries
	s.entries = make(map[string][]Diagnostic)
	s.mu.Unlock()
	uris := make([]string, 0, len(prev))
	for uri := range prev {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Files returns the URIs that currently have diagnostics, sorted.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]string, 0, len(s.entries))
	for uri := range s.entries {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Len returns the number of files with diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ForEach calls fn for every file in URI order with a copy of its
// diagnostics. fn runs outside the store lock.
func (s *Store) ForEach(fn func(uri string, diags []Diagnostic)) {
	s.mu.RLock()
	snapshot := make(map[string][]Diagnostic, len(s.entries))
	for uri, list := range s.entries {
		snapshot[uri] = slices.Clone(list)
	}
	s.mu.RUnlock()
	uris := make([]string, 0, len(snapshot))
	for uri := range snapshot {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		fn(uri, snapshot[uri])
	}
}
