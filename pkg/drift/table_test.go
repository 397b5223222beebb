package drift

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

func TestRecordSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drift.json")
	table, err := NewTable(path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	table.Record("AT-1", "North", model.Ongoing, at, errors.New("quota exceeded"))
	table.Record("AT-2", "South", model.Completed, at.Add(time.Minute), nil)
	if err := table.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewTable(path)
	if err != nil {
		t.Fatalf("NewTable reload failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", reloaded.Len())
	}
	e, ok := reloaded.Lookup("AT-1", "North")
	if !ok || e.Status != model.Ongoing || e.Error != "quota exceeded" {
		t.Errorf("Unexpected entry: %+v", e)
	}
	entries := reloaded.Entries()
	if entries[0].TaskID != "AT-1" {
		t.Errorf("Expected oldest failure first, got %+v", entries)
	}
}

func TestRecordReplacesAndClear(t *testing.T) {
	table, _ := NewTable(filepath.Join(t.TempDir(), "drift.json"))
	at := time.Now()
	table.Record("AT-1", "North", model.Ongoing, at, nil)
	table.Record("AT-1", "North", model.Completed, at, nil)
	if table.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", table.Len())
	}
	if e, _ := table.Lookup("AT-1", "North"); e.Status != model.Completed {
		t.Errorf("Expected latest status Completed, got %s", e.Status)
	}
	if _, ok := table.Lookup("AT-1", "South"); ok {
		t.Error("Entries must be keyed by station")
	}
	table.Clear("AT-1", "North")
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d", table.Len())
	}
}
