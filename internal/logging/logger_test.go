package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
	if NewLogger("test-component") != logger {
		t.Error("Expected the same logger for the same component")
	}
}

func TestConfigureRedirectsExistingLoggers(t *testing.T) {
	logger := NewLogger("configure-test")
	var buf bytes.Buffer
	t.Setenv(EnvLevel, "")
	if err := Configure(Config{Level: "debug", Format: "simple", Output: &buf}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Configure(Config{}) })

	logger.WithField("uri", "file:///a.php").Debug("checking")
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] checking uri=file:///a.php") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEnvLevelWins(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv(EnvLevel, "error")
	if err := Configure(Config{Level: "debug", Output: &buf}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Configure(Config{}) })

	NewLogger("env-test").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at error level, got %q", buf.String())
	}
}

func TestTextFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "analyzer run failed",
		Data: logrus.Fields{
			"component": "watch",
			"gen":       2,
			"error":     errors.New("boom"),
		},
	}
	out, err := (&TextFormatter{}).Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	want := "2024-05-01 10:30:00 [WARN] [watch] analyzer run failed error=boom gen=2\n"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}
