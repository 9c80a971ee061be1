package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"stanlsp/internal/diag"
	"stanlsp/internal/docs"
	"stanlsp/internal/fileuri"
)

// ErrUnsupportedDocument rejects a manual check of a language the analyzer
// cannot handle.
var ErrUnsupportedDocument = errors.New("unsupported document language")

// UnsupportedMessage is shown to the user when ErrUnsupportedDocument is
// returned.
const UnsupportedMessage = "Only PHP files can be scanned for errors"

// Operation names a manual trigger.
type Operation string

const (
	OpCheck        Operation = "check"
	OpClear        Operation = "clear"
	OpCheckProject Operation = "checkProject"
)

// Request is a user-invoked trigger. Document is required for OpCheck and
// optional for OpClear.
type Request struct {
	Op       Operation
	Document docs.Document
	Dirty    bool
}

// HandleRequest routes a manual trigger into the per-file pipeline.
// OpCheckProject blocks until every file has been checked or ctx is done.
func (s *Scheduler) HandleRequest(ctx context.Context, req Request) error {
	switch req.Op {
	case OpCheck:
		if req.Document == nil {
			return fmt.Errorf("%s: missing document", req.Op)
		}
		if !s.Supports(req.Document.LanguageID()) {
			s.reporter.Notice(diag.SevError, UnsupportedMessage)
			return ErrUnsupportedDocument
		}
		s.OnExternalCheckRequest(req.Document, req.Dirty, true)
		return nil
	case OpClear:
		if req.Document != nil {
			s.clearFile(req.Document.URI())
			if s.cache != nil {
				s.cache.Forget(req.Document.URI())
			}
			return nil
		}
		s.ClearAll()
		return nil
	case OpCheckProject:
		return s.CheckProject(ctx)
	default:
		return fmt.Errorf("unknown watch operation %q", req.Op)
	}
}

// ClearAll removes every file's diagnostics and the whole error cache,
// including entries of files that are no longer open.
func (s *Scheduler) ClearAll() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	for _, uri := range s.store.ClearAll() {
		s.nextGen(uri)
		s.sink.Publish(uri, nil)
	}
	if s.cache != nil {
		if err := s.cache.DropAll(); err != nil {
			s.log.WithError(err).Warn("failed to drop cached errors")
		}
	}
}

// CheckProject checks every analysable file under the configured paths with
// bounded concurrency. Open documents are checked with their unsaved text.
func (s *Scheduler) CheckProject(ctx context.Context) error {
	set := s.currentSettings()
	files, err := listProjectFiles(set.Root, set.Paths, set.Extensions)
	if err != nil {
		return fmt.Errorf("failed to list project files: %w", err)
	}
	s.reporter.Log(fmt.Sprintf("Checking project (%d files)", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.ProjectJobs)
	for _, path := range files {
		if gctx.Err() != nil || !s.track() {
			break
		}
		g.Go(func() error {
			defer s.inflight.Done()
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, dirty := s.projectDocument(path, set.Languages[0])
			s.checkFile(doc, dirty, s.nextGen(doc.URI()))
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) projectDocument(path, lang string) (docs.Document, bool) {
	uri := fileuri.FromPath(path)
	if text, open := s.docs.Text(uri); open {
		return docs.NewSnapshot(uri, lang, 0, text), true
	}
	return docs.NewSnapshot(uri, lang, 0, ""), false
}

// listProjectFiles walks paths (relative ones resolve against root) and
// returns files with one of exts, sorted and deduplicated.
func listProjectFiles(root string, paths, exts []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if slices.Contains(exts, filepath.Ext(p)) {
				files = append(files, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != p && len(name) > 1 && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				if path != p && (name == "vendor" || name == "node_modules") {
					return filepath.SkipDir
				}
				return nil
			}
			if slices.Contains(exts, filepath.Ext(path)) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
