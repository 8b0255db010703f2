package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "Index a directory and answer queries interactively",
	Long: `Index a directory tree, then read one query per line from stdin and
print the matching files. Edits and deletions of indexed files are applied
to the index while the command runs.

Examples:
  substrfind watch ~/notes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printer := newEventPrinter(os.Stderr)
		eng, err := openEngine(engine.WithEventSink(printer.print))
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		report, err := eng.Scan(ctx, args[0], engine.ScanOptions{})
		if err != nil {
			return err
		}
		printReport(report)
		if !eng.Status().Watching {
			fmt.Fprintln(os.Stderr, "file watching unavailable; changes are picked up by the next scan")
		}

		queries := make(chan string)
		go func() {
			defer close(queries)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				select {
				case queries <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
		}()

		fmt.Fprint(os.Stderr, "> ")
		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(os.Stderr)
				return nil
			case query, ok := <-queries:
				if !ok {
					return nil
				}
				query = strings.TrimRight(query, "\r")
				if query != "" {
					resp, err := eng.FindSubstring(ctx, query, true)
					if err != nil {
						return err
					}
					printMatches(resp)
				}
				fmt.Fprint(os.Stderr, "> ")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
