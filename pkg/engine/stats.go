package engine

import "github.com/harrisonrobin/hubsync/pkg/model"

// Stats are the dashboard totals over a filtered task list.
type Stats struct {
	TotalPackages  int `json:"total_packages"`
	TotalCouriers  int `json:"total_couriers"`
	CompletedTasks int `json:"completed_tasks"`
	OpenTasks      int `json:"open_tasks"`
}

// Progress is the completion ratio of one station.
type Progress struct {
	Station   model.Station `json:"station"`
	Tasks     int           `json:"tasks"`
	Completed int           `json:"completed"`
	Percent   float64       `json:"percent"`
}

// Summarize computes Stats for tasks.
func Summarize(tasks []model.Task) Stats {
	var s Stats
	couriers := make(map[string]struct{})
	for _, t := range tasks {
		s.TotalPackages += t.PackageCount
		couriers[t.Courier.Name] = struct{}{}
		if t.Status == model.Completed {
			s.CompletedTasks++
		} else {
			s.OpenTasks++
		}
	}
	s.TotalCouriers = len(couriers)
	return s
}

// StationProgress reports completion per station, in the given order.
func StationProgress(tasks []model.Task, stations []model.Station) []Progress {
	out := make([]Progress, len(stations))
	pos := make(map[model.Station]int, len(stations))
	for i, s := range stations {
		out[i].Station = s
		pos[s] = i
	}
	for _, t := range tasks {
		i, ok := pos[t.Station]
		if !ok {
			continue
		}
		out[i].Tasks++
		if t.Status == model.Completed {
			out[i].Completed++
		}
	}
	for i := range out {
		if out[i].Tasks > 0 {
			out[i].Percent = float64(out[i].Completed) / float64(out[i].Tasks) * 100
		}
	}
	return out
}
