// Package fileuri converts between file:// URIs and filesystem paths.
package fileuri

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ToPath returns the absolute filesystem path for a file URI, or "" when uri
// is empty or uses another scheme. Bare paths are accepted as-is.
func ToPath(uri string) string {
	if uri == "" {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && parsed.Scheme != "file" && !isDriveLetter(parsed.Scheme) {
		return ""
	}
	path := parsed.Path
	if parsed.Scheme == "" || isDriveLetter(parsed.Scheme) {
		path = uri
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	path = filepath.FromSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// FromPath returns the file URI for path.
func FromPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}

// Canonical normalises a URI so equal files compare equal as strings.
func Canonical(uri string) string {
	path := ToPath(uri)
	if path == "" {
		return uri
	}
	return FromPath(path)
}

func isDriveLetter(scheme string) bool {
	return len(scheme) == 1
}
