// Package cache remembers the last analyzer errors per file, in memory and
// on disk, so reopened documents show diagnostics before a fresh check ends.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"stanlsp/internal/diag"
)

// Current schema version - increment when payload format changes
const schemaVersion uint16 = 1

// payload is the on-disk form of one file's errors.
type payload struct {
	Schema uint16    `msgpack:"schema"`
	URI    string    `msgpack:"uri"`
	Stored time.Time `msgpack:"stored"`
	Errors []record  `msgpack:"errors"`
}

type record struct {
	Line       int    `msgpack:"line"`
	Message    string `msgpack:"message"`
	Identifier string `msgpack:"identifier,omitempty"`
}

// Cache is safe for concurrent use. A Cache without a directory keeps
// entries in memory only.
type Cache struct {
	mu  sync.RWMutex
	dir string
	mem map[string][]diag.RawError
	log *logrus.Entry
}

// DefaultDir returns $XDG_CACHE_HOME/app, falling back to ~/.cache/app.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

// Open returns a cache persisting under dir. An empty dir disables
// persistence.
func Open(dir string, log *logrus.Entry) (*Cache, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if dir != "" {
		if err := os.MkdirAll(filepath.Join(dir, "errors"), 0o755); err != nil {
			return nil, err
		}
	}
	return &Cache{dir: dir, mem: make(map[string][]diag.RawError), log: log}, nil
}

// NewMemory returns a cache that never touches the disk.
func NewMemory() *Cache {
	c, _ := Open("", nil)
	return c
}

func (c *Cache) pathFor(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return filepath.Join(c.dir, "errors", hex.EncodeToString(sum[:])+".mp")
}

// Load returns the cached errors for uri.
func (c *Cache) Load(uri string) ([]diag.RawError, bool) {
	c.mu.RLock()
	errs, ok := c.mem[uri]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(errs), true
	}
	if c.dir == "" {
		return nil, false
	}

	p, err := c.read(uri)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.WithError(err).WithField("uri", uri).Debug("ignoring unreadable cache entry")
		}
		return nil, false
	}
	if p.Schema != schemaVersion || p.URI != uri {
		return nil, false
	}
	errs = fromRecords(p.Errors)

	c.mu.Lock()
	c.mem[uri] = errs
	c.mu.Unlock()
	return slices.Clone(errs), true
}

// Save stores errs for uri. Persistence failures are logged, not returned:
// the cache only speeds up re-display.
func (c *Cache) Save(uri string, errs []diag.RawError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[uri] = slices.Clone(errs)
	if c.dir == "" {
		return
	}
	p := &payload{Schema: schemaVersion, URI: uri, Stored: time.Now().UTC(), Errors: toRecords(errs)}
	if err := c.write(c.pathFor(uri), p); err != nil {
		c.log.WithError(err).WithField("uri", uri).Warn("failed to persist cached errors")
	}
}

// Forget drops the entry for uri.
func (c *Cache) Forget(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mem, uri)
	if c.dir == "" {
		return
	}
	if err := os.Remove(c.pathFor(uri)); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.WithError(err).WithField("uri", uri).Warn("failed to remove cached errors")
	}
}

// DropAll forgets every entry, in memory and on disk.
func (c *Cache) DropAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem = make(map[string][]diag.RawError)
	if c.dir == "" {
		return nil
	}
	dir := filepath.Join(c.dir, "errors")
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (c *Cache) write(path string, p *payload) error {
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := msgpack.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// atomic replace
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Cache) read(uri string) (*payload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, err := os.Open(c.pathFor(uri))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func toRecords(errs []diag.RawError) []record {
	out := make([]record, len(errs))
	for i, e := range errs {
		out[i] = record{Line: e.Line, Message: e.Message, Identifier: e.Identifier}
	}
	return out
}

func fromRecords(recs []record) []diag.RawError {
	out := make([]diag.RawError, len(recs))
	for i, r := range recs {
		out[i] = diag.RawError{Line: r.Line, Message: r.Message, Identifier: r.Identifier}
	}
	return out
}
