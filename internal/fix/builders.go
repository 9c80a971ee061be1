package fix

import "stanlsp/internal/diag"

// Option mutates fix during construction.
type Option func(*Fix)

// Preferred marks fix as preferred suggestion.
func Preferred() Option {
	return func(f *Fix) {
		f.IsPreferred = true
	}
}

// WithID sets stable identifier for fix.
func WithID(id string) Option {
	return func(f *Fix) {
		f.ID = id
	}
}

// For attaches the diagnostic the fix resolves.
func For(d diag.Diagnostic) Option {
	return func(f *Fix) {
		f.Diagnostic = d
	}
}

func applyOptions(f Fix, opts []Option) Fix {
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	return f
}

// InsertText creates fix that inserts text at a position.
func InsertText(title string, at diag.Position, text string, opts ...Option) Fix {
	fix := Fix{
		Title: title,
		Kind:  KindQuickFix,
		Edits: []Edit{{Range: diag.Range{Start: at, End: at}, NewText: text}},
	}
	return applyOptions(fix, opts)
}
