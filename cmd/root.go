package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	manifestPath string
	jsonOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Stitch: vendor pinned upstream files with import rewriting",
	Long: `Stitch snapshots files from remote raw-content hosts into local
vendored directories, rewriting their import statements so they resolve
under the new package path. What to fetch, and how to rewrite it, is
declared in an HCL manifest (stitch.hcl by default).`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "stitch.hcl", "Path to the stitch manifest")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
