package cli

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/auth"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Sheets",
	Long:  `Run the browser OAuth flow and cache the token. A service account key in the config directory makes this unnecessary.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dir, err := loadConfig()
		if err != nil {
			return err
		}
		if err := auth.Reauthorize(context.Background(), dir); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", auth.TokenFile)
		return nil
	},
}
