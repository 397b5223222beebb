// Package index caches where each task lives in its station sheet so status
// writes can skip a column scan.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// RowIndex maps "station/task code" to a 1-based sheet row.
type RowIndex struct {
	Mappings map[string]int `json:"mappings"`
	Path     string         `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

func NewRowIndex(path string) (*RowIndex, error) {
	idx := &RowIndex{
		Mappings: make(map[string]int),
		Path:     path,
	}

	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

func key(station, taskID string) string {
	return station + "/" + taskID
}

func (idx *RowIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return json.NewDecoder(f).Decode(&idx.Mappings)
}

func (idx *RowIndex) Save() error {
	idx.mu.RLock()
	if !idx.dirty || idx.Path == "" {
		idx.mu.RUnlock()
		return nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// Get returns the cached row, or 0 when unknown.
func (idx *RowIndex) Get(station, taskID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[key(station, taskID)]
}

func (idx *RowIndex) Set(station, taskID string, row int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := key(station, taskID)
	if idx.Mappings[k] != row {
		idx.Mappings[k] = row
		idx.dirty = true
	}
}

func (idx *RowIndex) Remove(station, taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := key(station, taskID)
	if _, exists := idx.Mappings[k]; exists {
		delete(idx.Mappings, k)
		idx.dirty = true
	}
}
