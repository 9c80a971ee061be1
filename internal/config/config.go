// Package config loads stanlsp settings from stanlsp.toml and editor
// settings, and watches the file for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"stanlsp/internal/analyzer"
	"stanlsp/internal/cache"
	"stanlsp/internal/fix"
	"stanlsp/internal/watch"
)

// FileName is the project configuration file looked up from the workspace
// root upwards.
const FileName = "stanlsp.toml"

// Config is the resolved configuration.
type Config struct {
	WhenToRun       watch.Mode
	BinPath         string
	ConfigFile      string
	Paths           []string
	MemoryLimit     string
	Timeout         time.Duration
	Debounce        time.Duration
	Languages       []string
	Extensions      []string
	IgnoreDirective string
	ProjectJobs     int
	CacheDir        string

	// Root is the workspace root; relative paths resolve against it.
	Root string
	// Path is the configuration file that was loaded, if any.
	Path string
}

// Default returns the built-in configuration for root.
func Default(root string) Config {
	cacheDir, err := cache.DefaultDir("stanlsp")
	if err != nil {
		cacheDir = ""
	}
	return Config{
		WhenToRun:       watch.ModeOnSave,
		BinPath:         filepath.Join("vendor", "bin", "phpstan"),
		Paths:           []string{"."},
		MemoryLimit:     "1G",
		Timeout:         30 * time.Second,
		Debounce:        time.Second,
		Languages:       []string{"php"},
		Extensions:      []string{".php"},
		IgnoreDirective: fix.DefaultDirective,
		ProjectJobs:     4,
		CacheDir:        cacheDir,
		Root:            root,
	}
}

// Overlay is a partial configuration. Unset fields leave the base value
// alone. The same shape is read from TOML and from editor settings JSON.
type Overlay struct {
	WhenToRun       *string  `toml:"whenToRun" json:"whenToRun"`
	BinPath         *string  `toml:"binPath" json:"binPath"`
	ConfigFile      *string  `toml:"configFile" json:"configFile"`
	Paths           []string `toml:"paths" json:"paths"`
	MemoryLimit     *string  `toml:"memoryLimit" json:"memoryLimit"`
	Timeout         *string  `toml:"timeout" json:"timeout"`
	Debounce        *string  `toml:"debounce" json:"debounce"`
	Languages       []string `toml:"languages" json:"languages"`
	Extensions      []string `toml:"extensions" json:"extensions"`
	IgnoreDirective *string  `toml:"ignoreDirective" json:"ignoreDirective"`
	ProjectJobs     *int     `toml:"projectJobs" json:"projectJobs"`
	CacheDir        *string  `toml:"cacheDir" json:"cacheDir"`
}

// Apply returns c with o laid over it.
func (c Config) Apply(o Overlay) (Config, error) {
	if o.WhenToRun != nil {
		mode, err := watch.ParseMode(*o.WhenToRun)
		if err != nil {
			return c, err
		}
		c.WhenToRun = mode
	}
	setString(&c.BinPath, o.BinPath)
	setString(&c.ConfigFile, o.ConfigFile)
	setString(&c.MemoryLimit, o.MemoryLimit)
	setString(&c.IgnoreDirective, o.IgnoreDirective)
	setString(&c.CacheDir, o.CacheDir)
	if len(o.Paths) > 0 {
		c.Paths = append([]string(nil), o.Paths...)
	}
	if len(o.Languages) > 0 {
		c.Languages = append([]string(nil), o.Languages...)
	}
	if len(o.Extensions) > 0 {
		c.Extensions = normalizeExtensions(o.Extensions)
	}
	if o.Timeout != nil {
		d, err := parseDuration("timeout", *o.Timeout)
		if err != nil {
			return c, err
		}
		c.Timeout = d
	}
	if o.Debounce != nil {
		d, err := parseDuration("debounce", *o.Debounce)
		if err != nil {
			return c, err
		}
		c.Debounce = d
	}
	if o.ProjectJobs != nil {
		if *o.ProjectJobs <= 0 {
			return c, fmt.Errorf("projectJobs must be positive, got %d", *o.ProjectJobs)
		}
		c.ProjectJobs = *o.ProjectJobs
	}
	return c, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, s)
	}
	return d, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadFile decodes a configuration file. Unknown keys are rejected.
func LoadFile(path string) (Overlay, error) {
	var o Overlay
	meta, err := toml.DecodeFile(path, &o)
	if err != nil {
		return Overlay{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Overlay{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("binPath") && strings.TrimSpace(*o.BinPath) == "" {
		return Overlay{}, fmt.Errorf("%s: binPath must not be empty", path)
	}
	return o, nil
}

// Load resolves the configuration for a workspace root: defaults, then the
// nearest stanlsp.toml, if any. explicit, when set, names the file to use.
func Load(root, explicit string) (Config, error) {
	cfg := Default(root)
	path := explicit
	if path == "" {
		found, ok, err := Find(root)
		if err != nil {
			return cfg, err
		}
		if !ok {
			return cfg, nil
		}
		path = found
	}
	o, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg, err = cfg.Apply(o)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// ParseSettings decodes workspace/didChangeConfiguration settings. Both
// {"stanlsp": {...}} and the bare object are accepted.
func ParseSettings(raw []byte) (Overlay, error) {
	var wrapped struct {
		Stanlsp *Overlay `json:"stanlsp"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return Overlay{}, fmt.Errorf("invalid settings: %w", err)
	}
	if wrapped.Stanlsp != nil {
		return *wrapped.Stanlsp, nil
	}
	var o Overlay
	if err := json.Unmarshal(raw, &o); err != nil {
		return Overlay{}, fmt.Errorf("invalid settings: %w", err)
	}
	return o, nil
}

// SchedulerSettings returns the runtime knobs of the check scheduler.
func (c Config) SchedulerSettings() watch.Settings {
	return watch.Settings{
		Timeout:     c.Timeout,
		Languages:   c.Languages,
		Extensions:  c.Extensions,
		Root:        c.Root,
		Paths:       c.Paths,
		ProjectJobs: c.ProjectJobs,
	}
}

// AnalyzerOptions returns the PHPStan runner options.
func (c Config) AnalyzerOptions(log *logrus.Entry) analyzer.Options {
	return analyzer.Options{
		BinPath:     c.BinPath,
		ConfigFile:  c.ConfigFile,
		MemoryLimit: c.MemoryLimit,
		WorkDir:     c.Root,
		Logger:      log,
	}
}
