package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stanlsp/internal/logging"
)

// setupLogging applies the logging and color flags before any command runs.
func setupLogging(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	level, err := flags.GetString("log-level")
	if err != nil {
		return err
	}
	format, err := flags.GetString("log-format")
	if err != nil {
		return err
	}
	file, err := flags.GetString("log-file")
	if err != nil {
		return err
	}
	switch format {
	case "text", "json", "simple":
	default:
		return fmt.Errorf("unsupported log format %q (must be text, json or simple)", format)
	}
	if err := logging.Configure(logging.Config{Level: level, Format: format, File: file}); err != nil {
		return err
	}

	mode, err := flags.GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(mode) {
	case "on", "always":
		color.NoColor = false
	case "off", "never":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("unsupported color mode %q (must be auto, on or off)", mode)
	}
	return nil
}
