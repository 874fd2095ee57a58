package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/hstabledb/pkg/store"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Look up a key's live value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engineFromContext(cmd)
		value, loc, err := e.Get(store.DefaultReadOptions(), []byte(args[0]))
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("(not found)")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", value)
		fmt.Fprintf(cmd.ErrOrStderr(), "# file=%d offset=%d\n", loc.FileID(), loc.Offset())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
