package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/hstabledb/pkg/store"
)

var scanLimit int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Iterate every live record in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engineFromContext(cmd)

		snap, err := e.Snapshot()
		if err != nil {
			return err
		}
		defer snap.Release()

		it := snap.NewIterator(store.DefaultReadOptions())
		defer it.Close()

		if err := it.Begin(); err != nil {
			return err
		}

		count := 0
		for it.IsValid() {
			if scanLimit > 0 && count >= scanLimit {
				break
			}
			value, err := it.GetValue()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "hsdump: skipping unreadable record: %v\n", err)
			} else {
				fmt.Printf("%s\t%s\n", it.GetKey(), value)
			}
			count++
			if !it.Next() {
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "stop after this many records (0 = no limit)")
}
