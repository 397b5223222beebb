package cli

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/spf13/cobra"
)

var (
	packetsStation  string
	packetsCategory string
	packetsSearch   string
	packetsAs       string
)

var packetsCmd = &cobra.Command{
	Use:   "packets",
	Short: "List courier work packets",
	Long:  `Fetch every station and list the work packets, optionally narrowed to one station, a status category, a search term, or one courier's view.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, ok := engine.ParseCategory(packetsCategory)
		if !ok {
			return fmt.Errorf("unknown category %q (want all, open, or completed)", packetsCategory)
		}
		q := engine.Query{
			Role:     model.RoleAdmin,
			Station:  model.Station(packetsStation),
			Category: cat,
			Search:   packetsSearch,
		}
		if packetsAs != "" {
			q.Role, q.CallerID = model.RoleCourier, packetsAs
		}

		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.load(ctx); err != nil {
			return err
		}

		tasks := engine.Filter(a.engine.Snapshot(), q)
		packets := engine.Group(tasks)
		out := cmd.OutOrStdout()
		if len(packets) == 0 {
			fmt.Fprintln(out, "No packets.")
			return nil
		}
		for _, p := range packets {
			renderPacket(out, p)
		}
		renderStats(out, engine.Summarize(tasks))
		return nil
	},
}

func init() {
	packetsCmd.Flags().StringVar(&packetsStation, "station", "", "only this station")
	packetsCmd.Flags().StringVar(&packetsCategory, "category", "", "all, open, or completed")
	packetsCmd.Flags().StringVar(&packetsSearch, "search", "", "match courier name or task id")
	packetsCmd.Flags().StringVar(&packetsAs, "as", "", "show only this courier ID's packets")
}

func adminQuery() engine.Query {
	return engine.Query{Role: model.RoleAdmin}
}
