package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/internal/storage"
)

var (
	historyLimit  int
	historyEvents bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled scans and events",
	Long: `Show the most recent scans recorded in the journal, or the saved
events with --events.

Examples:
  substrfind history
  substrfind history --events --limit 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		eng, err := openEngine(engine.WithoutWatcher())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		if historyEvents {
			events, err := eng.RecentEvents(ctx, historyLimit)
			if err != nil {
				return err
			}
			printEvents(events)
			return nil
		}

		scans, err := eng.History(ctx, historyLimit)
		if err != nil {
			return err
		}
		printScans(scans)
		return nil
	},
}

func printScans(scans []*storage.Scan) {
	if len(scans) == 0 {
		fmt.Println("No scans recorded")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tROOT\tINDEXED\tREJECTED\tDURATION")
	for _, s := range scans {
		state := s.State
		if s.Forced {
			state += " (forced)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%s\t%s\n",
			humanize.Time(s.StartedAt),
			state,
			s.RootPath,
			humanize.Comma(int64(s.FilesIndexed)),
			humanize.Comma(int64(s.FilesScanned)),
			humanize.Comma(int64(s.FilesRejected)),
			s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}

func printEvents(events []*storage.EventRecord) {
	if len(events) == 0 {
		fmt.Println("No events recorded")
		return
	}

	for _, ev := range events {
		fmt.Printf("%s %-5s %s\n", ev.CreatedAt.Local().Format(time.DateTime), ev.Level, ev.Text)
	}
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyEvents, "events", false, "show saved events instead of scans")
	rootCmd.AddCommand(historyCmd)
}
