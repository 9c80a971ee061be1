package trace

import "errors"

// tee sends every event to each of its tracers.
type tee struct {
	level   Level
	tracers []Tracer
}

// Tee returns a Tracer that emits to all of tracers. Each receives its own
// copy of the event, sharing one sequence number.
func Tee(level Level, tracers ...Tracer) Tracer {
	return &tee{level: level, tracers: tracers}
}

func (t *tee) Emit(ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = NextSeq()
	}
	for _, tr := range t.tracers {
		cp := *ev
		tr.Emit(&cp)
	}
}

func (t *tee) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t *tee) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t *tee) Level() Level  { return t.level }
func (t *tee) Enabled() bool { return t.level > LevelOff }
