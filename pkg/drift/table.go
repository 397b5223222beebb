// Package drift keeps a local record of status writes that never reached
// the remote store, so the gap can be shown and replayed later.
package drift

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

// Entry is the last failed write for one task.
type Entry struct {
	TaskID   string        `json:"task_id"`
	Station  model.Station `json:"station"`
	Status   model.Status  `json:"status"`
	FailedAt time.Time     `json:"failed_at"`
	Error    string        `json:"error"`
}

// Table is a JSON-backed set of entries keyed by station and task code.
type Table struct {
	Failed map[string]Entry `json:"entries"`
	Path   string           `json:"-"`
	mu     sync.Mutex
	dirty  bool
}

func key(taskID string, station model.Station) string {
	return string(station) + "/" + taskID
}

// NewTable opens the table stored at path, creating an empty one if the file
// does not exist yet.
func NewTable(path string) (*Table, error) {
	t := &Table{
		Path:   path,
		Failed: make(map[string]Entry),
	}

	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return err
	}
	if t.Failed == nil {
		t.Failed = make(map[string]Entry)
	}
	return nil
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty || t.Path == "" {
		return nil
	}
	dir := filepath.Dir(t.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t)
	if err == nil {
		t.dirty = false
	}
	return err
}

// Record stores the latest failed write for a task, replacing older ones.
func (t *Table) Record(taskID string, station model.Station, status model.Status, at time.Time, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Entry{TaskID: taskID, Station: station, Status: status, FailedAt: at}
	if cause != nil {
		e.Error = cause.Error()
	}
	t.Failed[key(taskID, station)] = e
	t.dirty = true
}

func (t *Table) Clear(taskID string, station model.Station) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(taskID, station)
	if _, exists := t.Failed[k]; exists {
		delete(t.Failed, k)
		t.dirty = true
	}
}

func (t *Table) Lookup(taskID string, station model.Station) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.Failed[key(taskID, station)]
	return e, ok
}

// Entries returns all entries, oldest failure first.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.Failed))
	for _, e := range t.Failed {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailedAt.Equal(out[j].FailedAt) {
			return key(out[i].TaskID, out[i].Station) < key(out[j].TaskID, out[j].Station)
		}
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Failed)
}
