package analyzer

import (
	"errors"
	"fmt"
)

// Kind classifies analyzer failures.
type Kind uint8

const (
	// KindTransient covers crashes, unexpected exit codes, malformed output
	// and timeouts. The file stays checkable on the next trigger.
	KindTransient Kind = iota + 1
	// KindMissingFile means the target no longer exists.
	KindMissingFile
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMissingFile:
		return "missing-file"
	default:
		return "unknown"
	}
}

// Error is returned by Invoker implementations for every failed check.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("analyzer %s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("analyzer %s failure for %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrTimeout is wrapped by transient errors caused by an expired deadline.
var ErrTimeout = errors.New("analysis timed out")

// IsMissingFile reports whether err says the analyzed file is gone.
func IsMissingFile(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindMissingFile
}

func transient(path string, err error) *Error {
	return &Error{Kind: KindTransient, Path: path, Err: err}
}
