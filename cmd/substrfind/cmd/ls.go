package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/pkg/types"
)

var lsCmd = &cobra.Command{
	Use:   "ls <dir>",
	Short: "List a directory",
	Long: `List the entries of a directory, directories first.

Examples:
  substrfind ls ~/notes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(engine.WithoutWatcher())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		dir, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		rows, err := eng.OpenDirectory(dir)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, row := range rows {
			switch row.Kind {
			case types.KindDirectory:
				fmt.Fprintf(tw, "%s/\t-\t%s\n", row.Name, modified(row))
			case types.KindFile:
				fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Name, humanize.Bytes(uint64(row.Size)), modified(row))
			default:
				fmt.Fprintf(tw, "%s\t?\t%s\n", row.Name, modified(row))
			}
		}
		return tw.Flush()
	},
}

func modified(row types.DirEntry) string {
	if row.ModTime.IsZero() {
		return "-"
	}
	return humanize.Time(row.ModTime)
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
