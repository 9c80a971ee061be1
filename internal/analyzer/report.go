package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/goccy/go-json"

	"stanlsp/internal/diag"
)

// report mirrors `phpstan analyse --error-format=json`.
type report struct {
	Totals struct {
		Errors     int `json:"errors"`
		FileErrors int `json:"file_errors"`
	} `json:"totals"`
	Files  fileReports `json:"files"`
	Errors []string    `json:"errors"`
}

type fileReport struct {
	Errors   int       `json:"errors"`
	Messages []message `json:"messages"`
}

type message struct {
	Message    string `json:"message"`
	Line       *int   `json:"line"`
	Ignorable  bool   `json:"ignorable"`
	Identifier string `json:"identifier,omitempty"`
	Tip        string `json:"tip,omitempty"`
}

// fileReports accepts `[]` as well as an object; PHP encodes an empty map
// as a list.
type fileReports map[string]fileReport

func (f *fileReports) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}
	var m map[string]fileReport
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*f = m
	return nil
}

var errNoReport = errors.New("no JSON report in analyzer output")

// decodeReport parses analyzer stdout. PHP notices printed before the JSON
// document are skipped.
func decodeReport(out []byte) (*report, error) {
	start := bytes.IndexByte(out, '{')
	if start < 0 {
		return nil, errNoReport
	}
	var rep report
	if err := json.Unmarshal(out[start:], &rep); err != nil {
		return nil, fmt.Errorf("malformed analyzer output: %w", err)
	}
	return &rep, nil
}

// errorsFor returns the raw errors reported for path, in report order.
func (r *report) errorsFor(path string) []diag.RawError {
	fr, ok := r.lookup(path)
	if !ok {
		return nil
	}
	return toRawErrors(fr.Messages)
}

// all returns every file's errors keyed by path.
func (r *report) all() map[string][]diag.RawError {
	out := make(map[string][]diag.RawError, len(r.Files))
	for path, fr := range r.Files {
		out[path] = toRawErrors(fr.Messages)
	}
	return out
}

func (r *report) lookup(path string) (fileReport, bool) {
	if fr, ok := r.Files[path]; ok {
		return fr, true
	}
	want := normalizePath(path)
	for key, fr := range r.Files {
		if normalizePath(key) == want {
			return fr, true
		}
	}
	return fileReport{}, false
}

func normalizePath(path string) string {
	clean := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		return resolved
	}
	return clean
}

func toRawErrors(msgs []message) []diag.RawError {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]diag.RawError, 0, len(msgs))
	for _, m := range msgs {
		line := 0
		if m.Line != nil {
			line = *m.Line
		}
		out = append(out, diag.RawError{
			Line:       line,
			Message:    m.Message,
			Identifier: m.Identifier,
		})
	}
	return out
}
