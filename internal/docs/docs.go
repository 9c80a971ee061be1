// Package docs tracks the documents the editor has open and fans their
// lifecycle events out to subscribers.
package docs

import (
	"sort"
	"sync"
)

// EventKind identifies a document lifecycle event.
type EventKind uint8

const (
	EventOpen EventKind = iota + 1
	EventChange
	EventSave
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventChange:
		return "change"
	case EventSave:
		return "save"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Document is a read-only view of an open editor buffer.
type Document interface {
	URI() string
	LanguageID() string
	Text() string
}

// Snapshot is an immutable Document value.
type Snapshot struct {
	uri        string
	languageID string
	version    int
	text       string
}

// NewSnapshot builds a document value from its parts.
func NewSnapshot(uri, languageID string, version int, text string) Snapshot {
	return Snapshot{uri: uri, languageID: languageID, version: version, text: text}
}

func (d Snapshot) URI() string        { return d.uri }
func (d Snapshot) LanguageID() string { return d.languageID }
func (d Snapshot) Version() int       { return d.version }
func (d Snapshot) Text() string       { return d.text }

// Handler receives lifecycle events. It runs on the goroutine that applied
// the event and must not block for long.
type Handler func(Document)

// Subscription detaches a handler when disposed. Dispose is idempotent.
type Subscription interface {
	Dispose()
}

// Source emits document lifecycle events.
type Source interface {
	Subscribe(kind EventKind, h Handler) Subscription
	Text(uri string) (string, bool)
}

// Registry is the in-memory set of open documents. Mutations are applied
// in call order and handlers run synchronously after the state change.
type Registry struct {
	mu     sync.Mutex
	docs   map[string]Snapshot
	subs   map[EventKind]map[uint64]Handler
	nextID uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		docs: make(map[string]Snapshot),
		subs: make(map[EventKind]map[uint64]Handler),
	}
}

// Subscribe registers h for events of kind.
func (r *Registry) Subscribe(kind EventKind, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	if r.subs[kind] == nil {
		r.subs[kind] = make(map[uint64]Handler)
	}
	r.subs[kind][id] = h
	return &subscription{registry: r, kind: kind, id: id}
}

// Subscribers returns the number of handlers registered for kind.
func (r *Registry) Subscribers(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[kind])
}

// Open records a newly opened document.
func (r *Registry) Open(uri, languageID string, version int, text string) {
	doc := NewSnapshot(uri, languageID, version, text)
	r.mu.Lock()
	r.docs[uri] = doc
	r.mu.Unlock()
	r.emit(EventOpen, doc)
}

// Change replaces the text of an open document. Unknown URIs are ignored.
func (r *Registry) Change(uri string, version int, text string) {
	r.mu.Lock()
	prev, ok := r.docs[uri]
	if !ok {
		r.mu.Unlock()
		return
	}
	doc := NewSnapshot(uri, prev.languageID, version, text)
	r.docs[uri] = doc
	r.mu.Unlock()
	r.emit(EventChange, doc)
}

// Save marks a document saved. text, when non-nil, replaces the buffer.
func (r *Registry) Save(uri string, text *string) {
	r.mu.Lock()
	doc, ok := r.docs[uri]
	if !ok {
		r.mu.Unlock()
		return
	}
	if text != nil {
		doc = NewSnapshot(uri, doc.languageID, doc.version, *text)
		r.docs[uri] = doc
	}
	r.mu.Unlock()
	r.emit(EventSave, doc)
}

// Close forgets a document and emits EventClose.
func (r *Registry) Close(uri string) {
	r.mu.Lock()
	doc, ok := r.docs[uri]
	delete(r.docs, uri)
	r.mu.Unlock()
	if !ok {
		doc = NewSnapshot(uri, "", 0, "")
	}
	r.emit(EventClose, doc)
}

// Get returns the open document for uri.
func (r *Registry) Get(uri string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[uri]
	return doc, ok
}

// Text returns the current in-memory text for uri.
func (r *Registry) Text(uri string) (string, bool) {
	doc, ok := r.Get(uri)
	return doc.text, ok
}

// URIs lists open documents in sorted order.
func (r *Registry) URIs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.docs))
	for uri := range r.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) emit(kind EventKind, doc Document) {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.subs[kind]))
	for id := range r.subs[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, r.subs[kind][id])
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(doc)
	}
}

type subscription struct {
	once     sync.Once
	registry *Registry
	kind     EventKind
	id       uint64
}

func (s *subscription) Dispose() {
	s.once.Do(func() {
		s.registry.mu.Lock()
		delete(s.registry.subs[s.kind], s.id)
		s.registry.mu.Unlock()
	})
}
