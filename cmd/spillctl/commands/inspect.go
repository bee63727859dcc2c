package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/spill/internal/evictfile"
)

func newInspectCommand() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "inspect [file or directory]...",
		Short: "Show eviction file headers",
		Long: `Print the header of each eviction file: id, compression, raw and
stored size, and checksum. Directories are expanded to the eviction files
they contain, using the configured prefix and extension.

Examples:
  # Inspect a run directory
  spillctl inspect /tmp/spill/run-42

  # Decode every payload and verify its checksum
  spillctl inspect --verify /tmp/spill/run-42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var files []string
			for _, arg := range args {
				found, err := expand(arg, cfg.Eviction.Prefix, cfg.Eviction.Extension)
				if err != nil {
					return err
				}
				files = append(files, found...)
			}
			return inspect(cmd.OutOrStdout(), files, cfg.Eviction.Prefix, cfg.Eviction.Extension, verify)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "decode payloads and verify checksums")
	return cmd
}

// expand returns path itself, or the eviction files in it if it is a directory.
func expand(path, prefix, ext string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := evictfile.ParseID(e.Name(), prefix, ext); ok {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

func inspect(w io.Writer, files []string, prefix, ext string, verify bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPRESSION\tRAW\tSTORED\tRATIO\tCRC32C\tSTATUS")

	var bad int
	for _, path := range files {
		id := "-"
		if n, ok := evictfile.ParseID(path, prefix, ext); ok {
			id = fmt.Sprint(n)
		}

		h, err := readHeader(path, verify)
		if err != nil {
			bad++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%v\n", id, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%08x\tok\n",
			id, h.Compression, humanize.IBytes(h.RawLen), humanize.IBytes(h.StoredLen), h.Ratio(), h.Checksum)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d files are unreadable", bad, len(files))
	}
	return nil
}

func readHeader(path string, verify bool) (evictfile.Header, error) {
	if verify {
		data, err := os.ReadFile(path)
		if err != nil {
			return evictfile.Header{}, err
		}
		if _, err := evictfile.Decode(data); err != nil {
			return evictfile.Header{}, err
		}
		return evictfile.ReadHeader(data)
	}

	f, err := os.Open(path)
	if err != nil {
		return evictfile.Header{}, err
	}
	defer f.Close()

	buf := make([]byte, evictfile.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return evictfile.Header{}, evictfile.ErrCorrupt
		}
		return evictfile.Header{}, err
	}
	return evictfile.ReadHeader(buf)
}
