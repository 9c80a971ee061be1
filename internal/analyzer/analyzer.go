// Package analyzer runs the external static analyzer and decodes its report
// into raw line-level errors.
package analyzer

import (
	"context"

	"stanlsp/internal/diag"
)

// Request describes one file check.
type Request struct {
	URI        string
	Content    string
	LanguageID string
	// Dirty means Content differs from what is on disk.
	Dirty bool
}

// Invoker runs a check. Implementations block until the analyzer finishes
// or ctx expires; the analyzer itself cannot be cancelled mid-run beyond
// killing the process.
type Invoker interface {
	Check(ctx context.Context, req Request) ([]diag.RawError, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) ([]diag.RawError, error)

// Check calls f.
func (f InvokerFunc) Check(ctx context.Context, req Request) ([]diag.RawError, error) {
	return f(ctx, req)
}
