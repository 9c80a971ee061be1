// Package trace records the lifecycle of analyzer checks.
//
// Every scheduled check opens a span that ends with its outcome (applied,
// failed, missing, stale). Traces answer questions logs answer poorly: which
// generation won for a file, how long the analyzer took, and whether a result
// was dropped because a newer check had started.
//
// # Usage
//
//	stanlsp lsp --trace=/tmp/stanlsp.ndjson --trace-level=detail
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is off
//   - StreamTracer: writes each event immediately (file or stderr)
//   - Recorder: keeps the last N events in memory and dumps them on exit
//   - Tee: fans out to several tracers
//
// # Levels and scopes
//
// LevelPhase emits server-level events and check spans, LevelDetail adds
// analyzer process spans, LevelDebug emits everything.
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeCheck, "check", 0)
//	defer span.End("applied")
package trace
