package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harrisonrobin/hubsync/pkg/colors"
	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

var (
	secondaryColor = lipgloss.Color("#6C6C6C")
	warningColor   = lipgloss.Color("#F59E0B")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(secondaryColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor)
	packetStyle = lipgloss.NewStyle().PaddingLeft(1)
)

func avatar(c model.Courier) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colors.Avatar(c.Name)).
		Padding(0, 1).
		Render(c.Initial())
}

func statusBadge(s model.Status) string {
	return lipgloss.NewStyle().Foreground(colors.Status(s)).Render(string(s))
}

// renderPacket writes one packet with its tasks.
func renderPacket(w io.Writer, p model.WorkPacket) {
	name := p.Courier.DisplayName
	if p.Courier.ID != "" {
		name += " " + dimStyle.Render("["+p.Courier.ID+"]")
	}
	header := fmt.Sprintf("%s %s  %s  %s  %s",
		avatar(p.Courier),
		titleStyle.Render(name),
		dimStyle.Render(string(p.Station)),
		fmt.Sprintf("%d pkgs", p.TotalPackages),
		statusBadge(p.Status),
	)
	fmt.Fprintln(w, header)

	var lines []string
	for _, t := range p.Tasks {
		line := fmt.Sprintf("%-14s %4d  %s", t.TaskID, t.PackageCount, statusBadge(t.Status))
		if t.Unsynced {
			line += " " + warnStyle.Render("(unsynced)")
		}
		lines = append(lines, line)
	}
	fmt.Fprintln(w, packetStyle.Render(strings.Join(lines, "\n")))
}

func renderStats(w io.Writer, s engine.Stats) {
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d packages · %d couriers · %d completed · %d open",
		s.TotalPackages, s.TotalCouriers, s.CompletedTasks, s.OpenTasks)))
}
