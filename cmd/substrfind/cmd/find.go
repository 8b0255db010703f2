package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/internal/searcher"
)

var findCmd = &cobra.Command{
	Use:   "find <root> <query>",
	Short: "Index a directory and search it once",
	Long: `Index a directory tree, then print every file containing the query
together with the byte offset of its first occurrence.

The query is matched literally and is case-sensitive.

Examples:
  substrfind find ~/notes "TODO(release)"
  substrfind find . "func main"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := openEngine(engine.WithoutWatcher())
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		if _, err := eng.Scan(ctx, args[0], engine.ScanOptions{}); err != nil {
			return err
		}

		resp, err := eng.FindSubstring(ctx, args[1], false)
		if err != nil {
			return err
		}
		printMatches(resp)
		return nil
	},
}

func printMatches(resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Println("No results found")
		return
	}

	for _, m := range resp.Results {
		fmt.Printf("%s:%d\n", m.Path, m.Offset)
	}
}

func init() {
	rootCmd.AddCommand(findCmd)
}
