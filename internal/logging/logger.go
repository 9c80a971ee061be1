// Package logging provides per-component logrus loggers writing to stderr.
// Stdout is never used: in server mode it carries the JSON-RPC stream.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "STANLSP_LOG_LEVEL"

// Config controls every logger created by NewLogger.
type Config struct {
	Level  string // logrus level name, default "info"
	Format string // "text" (default), "json" or "simple"
	// Output defaults to stderr.
	Output io.Writer
	// File, when set, receives a copy of every entry.
	File string
}

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	current   = Config{}
	fileOut   io.WriteCloser
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := logrus.New()
	apply(logger, current)
	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure replaces the configuration of existing and future loggers.
func Configure(cfg Config) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if fileOut != nil {
		fileOut.Close()
		fileOut = nil
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		fileOut = f
	}
	current = cfg
	for _, entry := range loggers {
		apply(entry.Logger, cfg)
	}
	return nil
}

func apply(logger *logrus.Logger, cfg Config) {
	levelStr := "info"
	if env := os.Getenv(EnvLevel); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{DisableTimestamp: true, DisableComponent: true})
	default:
		logger.SetFormatter(&TextFormatter{Color: isTerminal(out)})
	}

	if fileOut != nil {
		out = io.MultiWriter(out, fileOut)
	}
	logger.SetOutput(out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
