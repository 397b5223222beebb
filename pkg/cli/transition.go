package cli

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/spf13/cobra"
)

var completeStation string

var startCmd = &cobra.Command{
	Use:   "start <courier name> <station>",
	Short: "Start a courier's packet",
	Long:  `Move every pending task of the courier's packet at the station to Ongoing and write the new status to the sheet.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.load(ctx); err != nil {
			return err
		}

		key := model.PacketKey{CourierName: args[0], Station: model.Station(args[1])}
		if _, err := a.engine.SelectPacket(ctx, key); err != nil {
			return err
		}
		a.engine.Wait()
		p, _ := a.engine.Packet(key, adminQuery())
		renderPacket(cmd.OutOrStdout(), p)
		return unsyncedError(p.Tasks)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <task id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.load(ctx); err != nil {
			return err
		}

		id, err := resolveTask(a.engine.Snapshot(), args[0], model.Station(completeStation))
		if err != nil {
			return err
		}
		if _, err := a.engine.CompleteTask(ctx, id); err != nil {
			return err
		}
		a.engine.Wait()
		t, _ := a.engine.Task(id)
		fmt.Fprintf(cmd.OutOrStdout(), "%s at %s: %s\n", t.TaskID, t.Station, statusBadge(t.Status))
		return unsyncedError([]model.Task{t})
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeStation, "station", "", "station of the task when its id is not unique")
}

// resolveTask accepts either an internal ID or an assignment code.
func resolveTask(tasks []model.Task, arg string, station model.Station) (string, error) {
	var matches []model.Task
	for _, t := range tasks {
		if t.ID == arg {
			return t.ID, nil
		}
		if t.TaskID == arg && (station == model.AllStations || t.Station == station) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task %q", arg)
	case 1:
		return matches[0].ID, nil
	}
	return "", fmt.Errorf("task %q exists at %d stations, pass --station", arg, len(matches))
}

func unsyncedError(tasks []model.Task) error {
	n := 0
	for _, t := range tasks {
		if t.Unsynced {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d status change(s) did not reach the sheet, run: hubsync resync", n)
	}
	return nil
}
