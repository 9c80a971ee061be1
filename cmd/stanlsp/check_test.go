package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"

	"stanlsp/internal/diag"
	"stanlsp/internal/fix"
)

type fakeChecker struct {
	results map[string][]diag.RawError
	err     error
	paths   []string
}

func (f *fakeChecker) CheckPaths(_ context.Context, paths []string) (map[string][]diag.RawError, error) {
	f.paths = paths
	return f.results, f.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestRunCheckPrintsErrors(t *testing.T) {
	disableColor(t)
	root := t.TempDir()
	a := filepath.Join(root, "src", "A.php")
	writeFile(t, a, "<?php\n  foo();\n")
	checker := &fakeChecker{results: map[string][]diag.RawError{
		a:                                {{Line: 2, Message: "Function foo not found.", Identifier: "function.notFound"}},
		filepath.Join(root, "clean.php"): nil,
	}}

	var out bytes.Buffer
	summary, err := runCheck(context.Background(), &out, checker, checkOptions{
		Paths: []string{root}, Root: root, Format: "text",
	})
	if err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if summary.Errors != 1 || summary.Fixed != 0 || len(summary.Files) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	want := filepath.Join("src", "A.php") + ":2:3: error: Function foo not found. [function.notFound]\nFound 1 error in 1 file\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
	if len(checker.paths) != 1 || checker.paths[0] != root {
		t.Fatalf("unexpected checked paths: %v", checker.paths)
	}
}

func TestRunCheckNoErrors(t *testing.T) {
	disableColor(t)
	var out bytes.Buffer
	summary, err := runCheck(context.Background(), &out, &fakeChecker{}, checkOptions{Format: "text"})
	if err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if summary.Errors != 0 || out.String() != "No errors\n" {
		t.Fatalf("unexpected result %+v %q", summary, out.String())
	}
}

func TestRunCheckFixInsertsIgnoreComments(t *testing.T) {
	disableColor(t)
	root := t.TempDir()
	a := filepath.Join(root, "A.php")
	writeFile(t, a, "<?php\nfunction f() {\n    foo();\n    bar();\n}\n")
	checker := &fakeChecker{results: map[string][]diag.RawError{
		a: {
			{Line: 3, Message: "first"},
			{Line: 3, Message: "second on the same line"},
			{Line: 4, Message: "third"},
		},
	}}

	var out bytes.Buffer
	summary, err := runCheck(context.Background(), &out, checker, checkOptions{
		Root: root, Fix: true, FixMode: fix.ApplyModeAll, Format: "text", Directive: "@phpstan-ignore-next-line",
	})
	if err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if summary.Errors != 3 || summary.Fixed != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	data, err := os.ReadFile(a)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "<?php\nfunction f() {\n    // @phpstan-ignore-next-line\n    foo();\n    // @phpstan-ignore-next-line\n    bar();\n}\n"
	if string(data) != want {
		t.Fatalf("unexpected file:\n%s", data)
	}
	if !strings.Contains(out.String(), "(ignored)") || !strings.HasSuffix(out.String(), "3 ignored\n") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRunCheckFixSelectsErrors(t *testing.T) {
	disableColor(t)
	src := "<?php\n$a;\nfoo();\n$b;\n"
	errs := []diag.RawError{
		{Line: 2, Message: "Undefined variable: $a", Identifier: "variable.undefined"},
		{Line: 3, Message: "Function foo not found.", Identifier: "function.notFound"},
		{Line: 4, Message: "Undefined variable: $b", Identifier: "variable.undefined"},
	}
	cases := map[string]struct {
		opts  checkOptions
		want  string
		fixed int
	}{
		"by identifier": {
			opts:  checkOptions{Fix: true, FixID: "variable.undefined"},
			want:  "<?php\n// @phpstan-ignore-next-line\n$a;\nfoo();\n// @phpstan-ignore-next-line\n$b;\n",
			fixed: 2,
		},
		"once": {
			opts:  checkOptions{Fix: true, FixMode: fix.ApplyModeOnce},
			want:  "<?php\n// @phpstan-ignore-next-line\n$a;\nfoo();\n$b;\n",
			fixed: 1,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			a := filepath.Join(root, "A.php")
			writeFile(t, a, src)
			opts := tc.opts
			opts.Root, opts.Format = root, "text"
			summary, err := runCheck(context.Background(), &bytes.Buffer{}, &fakeChecker{results: map[string][]diag.RawError{a: errs}}, opts)
			if err != nil {
				t.Fatalf("runCheck: %v", err)
			}
			if summary.Errors != 3 || summary.Fixed != tc.fixed {
				t.Fatalf("unexpected summary: %+v", summary)
			}
			data, err := os.ReadFile(a)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("unexpected file:\n%s", data)
			}
		})
	}
}

func TestRunCheckJSON(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "A.php")
	writeFile(t, a, "<?php\nfoo();\n")
	checker := &fakeChecker{results: map[string][]diag.RawError{
		a: {{Line: 2, Message: "boom", Identifier: "x.y"}},
	}}
	var out bytes.Buffer
	if _, err := runCheck(context.Background(), &out, checker, checkOptions{Root: root, Format: "json"}); err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	var got checkSummary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if got.Errors != 1 || len(got.Files) != 1 || got.Files[0].Path != "A.php" {
		t.Fatalf("unexpected report: %+v", got)
	}
	e := got.Files[0].Errors[0]
	if e.Line != 2 || e.Column != 1 || e.Message != "boom" || e.Identifier != "x.y" {
		t.Fatalf("unexpected error entry: %+v", e)
	}
}

func TestRunCheckPropagatesAnalyzerFailure(t *testing.T) {
	boom := errors.New("phpstan crashed")
	_, err := runCheck(context.Background(), &bytes.Buffer{}, &fakeChecker{err: boom}, checkOptions{Format: "text"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected analyzer error, got %v", err)
	}
}

func TestDisplayPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "proj")
	if got := displayPath(root, filepath.Join(root, "a", "b.php")); got != filepath.Join("a", "b.php") {
		t.Fatalf("got %q", got)
	}
	outside := filepath.Join(string(filepath.Separator), "elsewhere", "c.php")
	if got := displayPath(root, outside); got != outside {
		t.Fatalf("got %q", got)
	}
}

func TestResolvePaths(t *testing.T) {
	got := resolvePaths("/proj", []string{"src", "/abs"})
	if got[0] != filepath.Join("/proj", "src") || got[1] != "/abs" {
		t.Fatalf("unexpected paths: %v", got)
	}
}
