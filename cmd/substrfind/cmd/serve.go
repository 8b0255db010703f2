package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/mcp"
	"github.com/dshills/substrfind/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the
scan_directory, find_substring, open_directory, get_status and
recent_events tools. Logs are written to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("substrfind MCP server starting",
			"version", version,
			"build_mode", storage.BuildMode,
			"driver", storage.DriverName)

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		server, err := mcp.NewServer(eng)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		// Set up graceful shutdown
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		errChan := make(chan error, 1)
		go func() {
			logger.Info("MCP server ready, listening on stdio")
			errChan <- server.Serve(ctx)
		}()

		// Wait for shutdown signal or error
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
