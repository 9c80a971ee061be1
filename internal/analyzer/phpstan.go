package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stanlsp/internal/diag"
	"stanlsp/internal/fileuri"
	"stanlsp/internal/trace"
)

// waitDelay bounds how long a killed analyzer may keep its pipes open.
const waitDelay = 2 * time.Second

// Options configures the PHPStan runner.
type Options struct {
	BinPath     string
	ConfigFile  string
	MemoryLimit string
	// WorkDir is the working directory of the analyzer process, usually the
	// workspace root. Relative BinPath and ConfigFile resolve against it.
	WorkDir string
	Logger  *logrus.Entry
}

// PHPStan runs `phpstan analyse` as a child process per check.
type PHPStan struct {
	opts Options
	log  *logrus.Entry
}

// NewPHPStan returns a runner for opts.
func NewPHPStan(opts Options) *PHPStan {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PHPStan{opts: opts, log: log}
}

// Check analyses one file. Dirty content is written to a temporary file and
// analysed in place of the real path.
func (p *PHPStan) Check(ctx context.Context, req Request) ([]diag.RawError, error) {
	path := fileuri.ToPath(req.URI)
	if path == "" {
		return nil, transient(req.URI, fmt.Errorf("not a file uri: %q", req.URI))
	}
	if !req.Dirty {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &Error{Kind: KindMissingFile, Path: path, Err: err}
			}
			return nil, transient(path, err)
		}
	}

	args := p.baseArgs()
	if req.Dirty {
		tmp, cleanup, err := writeTemp(path, req.Content)
		if err != nil {
			return nil, transient(path, fmt.Errorf("failed to write temp file: %w", err))
		}
		defer cleanup()
		args = append(args, "--tmp-file", tmp, "--instead-of", path)
	}
	args = append(args, path)

	rep, err := p.run(ctx, path, args)
	if err != nil {
		return nil, err
	}
	if len(rep.Files) == 0 && len(rep.Errors) > 0 {
		if !req.Dirty && fileVanished(path, rep.Errors) {
			return nil, &Error{Kind: KindMissingFile, Path: path, Err: errors.New(rep.Errors[0])}
		}
		return nil, transient(path, errors.New(strings.Join(rep.Errors, "; ")))
	}
	return rep.errorsFor(path), nil
}

// CheckPaths analyses whole directories or files at once and returns the
// errors of every reported file keyed by absolute path.
func (p *PHPStan) CheckPaths(ctx context.Context, paths []string) (map[string][]diag.RawError, error) {
	args := append(p.baseArgs(), paths...)
	rep, err := p.run(ctx, strings.Join(paths, ","), args)
	if err != nil {
		return nil, err
	}
	if len(rep.Files) == 0 && len(rep.Errors) > 0 {
		return nil, transient("", errors.New(strings.Join(rep.Errors, "; ")))
	}
	return rep.all(), nil
}

func (p *PHPStan) baseArgs() []string {
	args := []string{"analyse", "--error-format=json", "--no-progress", "--no-interaction"}
	if p.opts.MemoryLimit != "" {
		args = append(args, "--memory-limit="+p.opts.MemoryLimit)
	}
	if p.opts.ConfigFile != "" {
		args = append(args, "-c", p.resolve(p.opts.ConfigFile))
	}
	return args
}

func (p *PHPStan) run(ctx context.Context, target string, args []string) (*report, error) {
	bin := p.binary()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = p.opts.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	p.log.WithFields(logrus.Fields{"bin": bin, "args": strings.Join(args, " ")}).Debug("running analyzer")
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeAnalyzer, "phpstan", trace.CurrentSpan(ctx)).
		WithExtra("target", target)
	runErr := cmd.Run()
	if cmd.ProcessState != nil {
		span.WithExtra("exit", strconv.Itoa(cmd.ProcessState.ExitCode()))
	}
	span.End("")
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transient(target, ErrTimeout)
		}
		return nil, transient(target, ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, transient(target, fmt.Errorf("failed to start %s: %w", bin, runErr))
		}
		// exit code 1 means "errors found"; anything else is a crash
		if exitErr.ExitCode() != 1 {
			return nil, transient(target, fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), firstLine(stderr.String(), stdout.String())))
		}
	}
	rep, err := decodeReport(stdout.Bytes())
	if err != nil {
		return nil, transient(target, fmt.Errorf("%w: %s", err, firstLine(stderr.String())))
	}
	return rep, nil
}

// binary resolves BinPath relative to the workspace, falling back to the
// PATH lookup of "phpstan" when the configured binary is missing.
func (p *PHPStan) binary() string {
	bin := p.opts.BinPath
	if bin == "" {
		return "phpstan"
	}
	if strings.ContainsRune(bin, filepath.Separator) || strings.ContainsRune(bin, '/') {
		resolved := p.resolve(bin)
		if _, err := os.Stat(resolved); err == nil {
			return resolved
		}
		return "phpstan"
	}
	return bin
}

func (p *PHPStan) resolve(path string) string {
	if filepath.IsAbs(path) || p.opts.WorkDir == "" {
		return path
	}
	return filepath.Join(p.opts.WorkDir, path)
}

func writeTemp(path, content string) (string, func(), error) {
	f, err := os.CreateTemp("", "stanlsp-*"+filepath.Ext(path))
	if err != nil {
		return "", nil, err
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return name, cleanup, nil
}

// fileVanished reports whether a run that produced only general errors
// failed because path itself went away. Errors about other files, such as a
// missing bootstrap or config, are not about path.
func fileVanished(path string, msgs []string) bool {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return true
	}
	for _, m := range msgs {
		if !strings.Contains(m, path) {
			continue
		}
		lower := strings.ToLower(m)
		if strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found") {
			return true
		}
	}
	return false
}

func firstLine(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if idx := strings.IndexByte(c, '\n'); idx >= 0 {
			return c[:idx]
		}
		return c
	}
	return "no output"
}
