package trace

import (
	"io"
	"sync"
)

// DefaultRecorderSize is the event capacity of a Recorder built without an
// explicit size.
const DefaultRecorderSize = 4096

// Recorder keeps the most recent events in memory and writes them out on
// request, usually when the command exits.
type Recorder struct {
	level Level

	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

// NewRecorder returns a Recorder holding at most size events.
func NewRecorder(size int, level Level) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{level: level, buf: make([]Event, size)}
}

// Emit stores a copy of ev, overwriting the oldest event when full.
func (r *Recorder) Emit(ev *Event) {
	if !emittable(r.level, ev) {
		return
	}
	stored := *ev
	if stored.Seq == 0 {
		stored.Seq = NextSeq()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = stored
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Events returns the stored events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, r.count)
	first := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := range r.count {
		out = append(out, r.buf[(first+i)%len(r.buf)])
	}
	return out
}

// Dump writes the stored events to w.
func (r *Recorder) Dump(w io.Writer, format Format) error {
	for _, ev := range r.Events() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Flush() error  { return nil }
func (r *Recorder) Close() error  { return nil }
func (r *Recorder) Level() Level  { return r.level }
func (r *Recorder) Enabled() bool { return r.level > LevelOff }
