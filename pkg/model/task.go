package model

import "time"

// Station is a physical hub location. The set of stations is configured
// externally; the engine never invents one.
type Station string

// AllStations selects every station in filters.
const AllStations Station = ""

// Task represents a single delivery assignment fetched from a station.
type Task struct {
	ID           string  `json:"id"`      // merge and update key, unique in the merged list
	TaskID       string  `json:"task_id"` // assignment code shown to users
	Courier      Courier `json:"courier"`
	Station      Station `json:"station"`
	PackageCount int     `json:"package_count"`
	Status       Status  `json:"status"`
	// LastUpdated is stamped locally when a transition is applied.
	LastUpdated time.Time `json:"last_updated"`
	// Unsynced is set while a local transition has not reached the remote store.
	Unsynced bool `json:"unsynced,omitempty"`
}

// CourierName returns the raw courier display string used for grouping.
func (t Task) CourierName() string {
	return t.Courier.Name
}
