package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stanlsp/internal/logging"
	"stanlsp/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "stanlsp",
	Short: "PHPStan diagnostics for editors",
	Long: `stanlsp runs PHPStan on PHP files and reports its errors, either to an
editor over the Language Server Protocol or on the command line`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// main registers subcommands and persistent flags, then executes the root
// command. Any error exits with status 1.
func main() {
	rootCmd.Version = version.String()

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to stanlsp.toml (default: search upwards from the workspace)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("log-level", "", "log level (trace|debug|info|warn|error), overridden by $"+logging.EnvLevel)
	flags.String("log-format", "text", "log format (text|json|simple)")
	flags.String("log-file", "", "also append logs to this file")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errIssuesFound) {
			fmt.Fprintf(os.Stderr, "stanlsp: %v\n", err)
		}
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
