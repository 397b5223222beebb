package engine

import (
	"strings"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"golang.org/x/text/cases"
)

// Category narrows tasks by status.
type Category string

const (
	CategoryAll       Category = ""
	CategoryCompleted Category = "completed"
	CategoryOpen      Category = "open" // ongoing or pending
)

// ParseCategory accepts the category names used by the CLI and API.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "none":
		return CategoryAll, true
	case "completed", "done":
		return CategoryCompleted, true
	case "open", "ongoing", "pending":
		return CategoryOpen, true
	}
	return "", false
}

// Query is the per-caller view state applied before grouping.
type Query struct {
	Role     model.Role
	CallerID string
	Station  model.Station
	Category Category
	Search   string

	// Status narrows the member list returned by Packet. The packet's
	// aggregates still cover every member. Empty means all.
	Status model.Status
}

// ParseStatusFilter accepts "all" or a status name. Unlike model.ParseStatus
// an empty value means no filter.
func ParseStatusFilter(s string) (model.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", true
	}
	st, err := model.ParseStatus(s)
	return st, err == nil
}

// Filter applies role scope, station, category, and search in that order.
// Role scope comes first so later stages only ever see what the caller may see.
func Filter(tasks []model.Task, q Query) []model.Task {
	out := tasks
	if q.Role == model.RoleCourier {
		callerID := model.NormalizeCourierID(q.CallerID)
		out = keep(out, func(t model.Task) bool {
			return t.Courier.ID != "" && t.Courier.ID == callerID
		})
	}
	if q.Station != model.AllStations {
		out = keep(out, func(t model.Task) bool { return t.Station == q.Station })
	}
	switch q.Category {
	case CategoryCompleted:
		out = keep(out, func(t model.Task) bool { return t.Status == model.Completed })
	case CategoryOpen:
		out = keep(out, func(t model.Task) bool { return t.Status != model.Completed })
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		fold := cases.Fold()
		needle := fold.String(search)
		out = keep(out, func(t model.Task) bool {
			return strings.Contains(fold.String(t.Courier.Name), needle) ||
				strings.Contains(fold.String(t.TaskID), needle)
		})
	}
	return out
}

func keep(tasks []model.Task, pred func(model.Task) bool) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}
