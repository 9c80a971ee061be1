package trace

import "context"

// binding is what a context carries: the tracer and the span new spans
// should parent to.
type binding struct {
	tracer Tracer
	span   uint64
}

type bindingKey struct{}

func bound(ctx context.Context) binding {
	b, _ := ctx.Value(bindingKey{}).(binding)
	if b.tracer == nil {
		b.tracer = Nop
	}
	return b
}

// WithTracer returns ctx carrying t. The current span is kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	b := bound(ctx)
	if t == nil {
		t = Nop
	}
	b.tracer = t
	return context.WithValue(ctx, bindingKey{}, b)
}

// WithSpan returns ctx with s as the parent of spans begun from it.
func WithSpan(ctx context.Context, s *Span) context.Context {
	b := bound(ctx)
	b.span = s.ID()
	return context.WithValue(ctx, bindingKey{}, b)
}

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return bound(ctx).tracer
}

// CurrentSpan returns the span ID carried by ctx, or 0.
func CurrentSpan(ctx context.Context) uint64 {
	return bound(ctx).span
}
