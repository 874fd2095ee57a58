package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/mmap"

	"github.com/ssargent/hstabledb/pkg/codec"
)

var infoCmd = &cobra.Command{
	Use:   "info <file-id>",
	Short: "Print a segment's file-id, large flag, size, and indexed record count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engineFromContext(cmd)

		var fileID uint32
		if _, err := fmt.Sscanf(args[0], "%d", &fileID); err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}

		path := e.GetFilepath(fileID)
		ra, err := mmap.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
		}
		defer ra.Close()

		fi, err := codec.LoadFile(ra, int64(ra.Len()), fileID)
		if err != nil {
			return err
		}

		fmt.Printf("file:        %s\n", filepath.Base(path))
		fmt.Printf("file-id:     %d\n", fi.FileID)
		fmt.Printf("large:       %v\n", fi.IsLarge)
		fmt.Printf("size:        %d bytes\n", fi.FileSize)
		fmt.Printf("key-hashes:  %d\n", len(fi.Locations))

		total := 0
		for _, offsets := range fi.Locations {
			total += len(offsets)
		}
		fmt.Printf("records:     %d\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
