package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
	// KindError is an instant event emitted at every enabled level.
	KindError
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent coarser events.
type Scope uint8

const (
	ScopeServer   Scope = iota + 1 // lifecycle, configuration reloads
	ScopeCheck                     // one scheduled check of one file
	ScopeAnalyzer                  // analyzer process invocation
	ScopeEvent                     // individual document events
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeServer:
		return "server"
	case ScopeCheck:
		return "check"
	case ScopeAnalyzer:
		return "analyzer"
	case ScopeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number (monotonic)
	Kind     Kind              // event kind
	Scope    Scope             // granularity level
	SpanID   uint64            // unique span identifier
	ParentID uint64            // parent span (0 if root)
	Name     string            // e.g. "check", "config-reload"
	Detail   string            // optional detail message
	Extra    map[string]string // extensible key-value pairs
}

// emittable reports whether ev passes the level filter.
func emittable(l Level, ev *Event) bool {
	if ev.Kind == KindError {
		return l > LevelOff
	}
	return l.ShouldEmit(ev.Scope)
}
