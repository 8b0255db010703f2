package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/substrfind/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("substrfind\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Journal Schema: %s\n", storage.CurrentSchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
