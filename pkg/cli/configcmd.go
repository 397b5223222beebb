package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		if shown.GeminiAPIKey != "" {
			shown.GeminiAPIKey = "********"
		}
		if shown.JWTSecret != "" {
			shown.JWTSecret = "********"
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(&shown)
	},
}

var configSetSpreadsheetCmd = &cobra.Command{
	Use:   "set-spreadsheet <id>",
	Short: "Set the spreadsheet that holds the station tabs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(func(cfg *config.Config) {
			cfg.SpreadsheetID = args[0]
		}, fmt.Sprintf("Spreadsheet set to: %s", args[0]), cmd)
	},
}

var configSetStationsCmd = &cobra.Command{
	Use:   "set-stations <station>...",
	Short: "Set the stations to fetch, in display order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(func(cfg *config.Config) {
			cfg.Stations = append([]string(nil), args...)
		}, fmt.Sprintf("Stations set to: %v", args), cmd)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetSpreadsheetCmd)
	configCmd.AddCommand(configSetStationsCmd)
}

// updateConfig edits the stored file, so environment overrides are never
// written back.
func updateConfig(edit func(*config.Config), msg string, cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}
	cfg, err := config.LoadStored(path)
	if err != nil {
		return err
	}
	edit(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
