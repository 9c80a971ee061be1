package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stanlsp/internal/logging"
	"stanlsp/internal/lsp"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server over stdio",
	Long: `Run the language server over stdio. PHPStan errors are published as
diagnostics; settings come from stanlsp.toml and workspace/didChangeConfiguration`,
	Args: cobra.NoArgs,
	RunE: runLSP,
}

func init() {
	lspCmd.Flags().Bool("no-watch-config", false, "do not reload stanlsp.toml when it changes")
}

func runLSP(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return err
	}
	noWatch, err := cmd.Flags().GetBool("no-watch-config")
	if err != nil {
		return err
	}
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		ConfigPath:  configPath,
		Logger:      logging.NewLogger("lsp"),
		Tracer:      tracer,
		WatchConfig: !noWatch,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
