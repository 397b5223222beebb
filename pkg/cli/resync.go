package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Retry status writes that failed earlier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		synced, err := a.engine.Resync(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Resynced %d status change(s).\n", synced)
		return err
	},
}
