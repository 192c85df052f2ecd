package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/stitch-tool/stitch/internal/engine"
	"github.com/stitch-tool/stitch/internal/manifest"
	"github.com/stitch-tool/stitch/internal/runlock"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clear vendored files from every target directory without fetching",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return err
		}

		lock, err := runlock.Acquire(".stitch/run.lock")
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		eng := engine.New(osfs.New("."), nil, "")
		for _, g := range m.Groups {
			patterns := engine.CleanPatterns(g)
			if err := eng.Clear(g.Dir, patterns); err != nil {
				return err
			}
			fmt.Printf("cleared %s (%v)\n", g.Dir, patterns)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
