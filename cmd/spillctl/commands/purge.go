package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPurgeCommand() *cobra.Command {
	var (
		dir    string
		prefix string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete eviction files left behind by a crashed run",
		Long: `Delete every file in the eviction directory whose name starts with the
eviction prefix, then remove the directory if it is empty. This is what a
run does on cleanup; use it when a run exited without cleaning up.

Examples:
  spillctl purge --dir /tmp/spill/run-42
  spillctl purge --dir /tmp/spill/run-42 --prefix blk --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join(cfg.CacheRoot, cfg.RunID)
			}
			if prefix == "" {
				prefix = cfg.Eviction.Prefix
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var n int
			var freed int64
			for _, e := range entries {
				if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
					continue
				}
				path := filepath.Join(dir, e.Name())
				if info, err := e.Info(); err == nil {
					freed += info.Size()
				}
				if dryRun {
					fmt.Fprintln(out, path)
				} else if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return err
				}
				n++
			}

			verb := "deleted"
			if dryRun {
				verb = "would delete"
			} else if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
				if err := os.Remove(dir); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "%s %d files (%s)\n", verb, n, humanize.IBytes(uint64(freed)))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "eviction directory (default: <cache_root>/<run_id>)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "eviction file prefix (default: configured prefix)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list files without deleting them")
	return cmd
}
