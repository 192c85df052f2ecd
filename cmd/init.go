package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterManifest = `host = "https://raw.githubusercontent.com"

group "library" {
  owner = "acme"
  repo  = "widgets"
  ref   = "main"
  path  = "src/widgets"
  dir   = "vendor/widgets"
  files = ["__init__.py", "api.py", "helpers.py"]

  # Collapse absolute imports of the upstream package into relative
  # ones so the files resolve under the vendored path. Order matters.
  rule {
    pattern = "from widgets "
    replace = "from . "
  }
  rule {
    pattern = "from widgets"
    replace = "from ."
  }
  rule {
    pattern = "from .."
    replace = "from ."
  }
}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(manifestPath); err == nil {
			return fmt.Errorf("%s already exists", manifestPath)
		}
		if err := os.WriteFile(manifestPath, []byte(starterManifest), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", manifestPath, err)
		}
		fmt.Printf("wrote %s\n", manifestPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
