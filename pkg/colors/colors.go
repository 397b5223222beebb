// Package colors assigns terminal colors to couriers and task states.
package colors

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

// Avatars is the palette couriers are drawn from: blue, emerald, violet,
// amber, rose, indigo, cyan.
var Avatars = []lipgloss.Color{
	"#2563EB",
	"#059669",
	"#7C3AED",
	"#D97706",
	"#E11D48",
	"#4F46E5",
	"#0891B2",
}

// AvatarIndex returns the palette slot for a courier name. The same name
// always maps to the same slot.
func AvatarIndex(name string) int {
	var hash int32
	for _, r := range name {
		hash = int32(r) + (hash << 5) - hash
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return int(h % int64(len(Avatars)))
}

// Avatar returns the avatar color for a courier name.
func Avatar(name string) lipgloss.Color {
	return Avatars[AvatarIndex(name)]
}

// Status returns the badge color of a status.
func Status(s model.Status) lipgloss.Color {
	switch s {
	case model.Completed:
		return "#10B981"
	case model.Ongoing:
		return "#3B82F6"
	default:
		return "#F59E0B"
	}
}
