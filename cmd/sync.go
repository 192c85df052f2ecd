package cmd

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/stitch-tool/stitch/api"
	"github.com/stitch-tool/stitch/internal/engine"
	"github.com/stitch-tool/stitch/internal/fetch"
	"github.com/stitch-tool/stitch/internal/lockfile"
	"github.com/stitch-tool/stitch/internal/manifest"
	"github.com/stitch-tool/stitch/internal/runlock"
)

var (
	keepGoing bool
	syncJobs  int
	noCache   bool
	cachePath string
	lockPath  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, rewrite, and install every file the manifest lists",
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

		var cache *fetch.Cache
		if !noCache {
			cache, err = fetch.OpenCache(cachePath)
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()
		}

		client := fetch.NewClient(os.Getenv("STITCH_TOKEN"), cache)
		fsys := osfs.New(".")

		eng := engine.New(fsys, client, api.DefaultHost)
		eng.Jobs = syncJobs
		eng.KeepGoing = keepGoing
		if !jsonOutput {
			eng.Printf = func(format string, a ...any) { fmt.Printf(format, a...) }
		}

		rep, runErr := eng.Run(cmd.Context(), m)

		// Record what actually landed. Groups that did not swap this
		// run keep their entries from the previous lock: their files
		// on disk are still the previous sync's.
		l := lockfile.FromReport(rep)
		prev, err := lockfile.Load(fsys, lockPath)
		switch {
		case err == nil:
			l = lockfile.Merge(prev, l, m, rep)
		case !os.IsNotExist(err):
			return err
		}
		if len(l.Files) > 0 {
			if err := l.Write(fsys, lockPath); err != nil {
				return err
			}
		}

		if jsonOutput {
			data, err := rep.JSON()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			fmt.Print(rep.Summary())
		}
		return runErr
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Report per-file failures and continue with the remaining groups")
	syncCmd.Flags().IntVarP(&syncJobs, "jobs", "j", 4, "Parallel fetches per group")
	syncCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the local fetch cache")
	syncCmd.Flags().StringVar(&cachePath, "cache", ".stitch/cache.db", "Path to the fetch cache database")
	syncCmd.Flags().StringVar(&lockPath, "lock", "stitch.lock", "Path to the lock file")
	rootCmd.AddCommand(syncCmd)
}
