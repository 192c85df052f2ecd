package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/stitch-tool/stitch/internal/lockfile"
	"github.com/stitch-tool/stitch/internal/manifest"
)

var verifyLockPath string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the vendored tree against the lock file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return err
		}

		fsys := osfs.New(".")
		l, err := lockfile.Load(fsys, verifyLockPath)
		if err != nil {
			return fmt.Errorf("load lock: %w", err)
		}

		drifts, err := lockfile.Verify(fsys, m, l)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := oj.Marshal(drifts, 2)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			for _, d := range drifts {
				fmt.Printf("%-10s %s\n", d.State, d.Path)
			}
		}

		if !lockfile.Clean(drifts) {
			bad := 0
			for _, d := range drifts {
				if d.State != lockfile.StateOK {
					bad++
				}
			}
			return fmt.Errorf("%d path(s) out of sync", bad)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyLockPath, "lock", "stitch.lock", "Path to the lock file")
	rootCmd.AddCommand(verifyCmd)
}
