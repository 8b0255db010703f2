package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/engine"
)

var scanForce bool

var scanCmd = &cobra.Command{
	Use:   "scan <root>",
	Short: "Index a directory tree",
	Long: `Scan a directory tree and index every UTF-8 text file below it.

The summary is printed when the scan finishes. Interrupting the scan keeps
the files indexed so far.

Examples:
  substrfind scan ~/notes
  substrfind scan --force .`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printer := newEventPrinter(os.Stderr)
		eng, err := openEngine(engine.WithoutWatcher(), engine.WithEventSink(printer.print))
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		report, err := eng.Scan(ctx, args[0], engine.ScanOptions{Force: scanForce})
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

func printReport(report *engine.ScanReport) {
	fmt.Printf("Root:      %s\n", report.Root)
	fmt.Printf("Scanned:   %s files\n", humanize.Comma(int64(report.FilesScanned)))
	fmt.Printf("Indexed:   %s files\n", humanize.Comma(int64(report.FilesIndexed)))
	if report.FilesSkipped > 0 {
		fmt.Printf("Unchanged: %s files\n", humanize.Comma(int64(report.FilesSkipped)))
	}
	if report.FilesRejected > 0 {
		fmt.Printf("Rejected:  %s files (binary or too varied)\n", humanize.Comma(int64(report.FilesRejected)))
	}
	if report.FilesFailed > 0 {
		fmt.Printf("Failed:    %s files\n", humanize.Comma(int64(report.FilesFailed)))
	}
	if report.FilesRemoved > 0 {
		fmt.Printf("Removed:   %s files\n", humanize.Comma(int64(report.FilesRemoved)))
	}
	if report.DirectoriesSkipped > 0 {
		fmt.Printf("Skipped:   %s unreadable directories\n", humanize.Comma(int64(report.DirectoriesSkipped)))
	}
	fmt.Printf("Duration:  %s\n", report.Duration.Round(time.Millisecond))
}

func init() {
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "rebuild the index from scratch")
	rootCmd.AddCommand(scanCmd)
}
