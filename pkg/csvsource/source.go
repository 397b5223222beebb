// Package csvsource serves station task lists from a directory of CSV files,
// one <station>.csv per station. It is used for offline work and demos.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/harrisonrobin/hubsync/pkg/rows"
)

// ErrTaskNotFound is returned when a status write names a task that is not in
// the station's file.
var ErrTaskNotFound = errors.New("task not found in csv")

// Source reads and writes station CSV files under Dir.
type Source struct {
	Dir string
	log *slog.Logger
	mu  sync.Mutex
}

// New creates a source rooted at dir.
func New(dir string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{Dir: dir, log: log}
}

func (s *Source) path(station model.Station) string {
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(string(station))
	return filepath.Join(s.Dir, name+".csv")
}

func (s *Source) read(station model.Station) ([][]string, error) {
	f, err := os.Open(s.path(station))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// FetchTasks decodes the station's file.
func (s *Source) FetchTasks(ctx context.Context, station model.Station) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	records, err := s.read(station)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("unable to read station file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	res, err := rows.Decode(station, records[0], records[1:])
	if err != nil {
		return nil, err
	}
	for _, sk := range res.Skipped {
		s.log.Warn("skipping csv row", "station", station, "row", sk.Row, "reason", sk.Reason)
	}
	return res.Tasks, nil
}

// WriteStatus rewrites the status cell of the task's row and replaces the
// file atomically.
func (s *Source) WriteStatus(ctx context.Context, taskID string, status model.Status, station model.Station) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(station)
	if err != nil {
		return fmt.Errorf("unable to read station file: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s at %s", ErrTaskNotFound, taskID, station)
	}
	layout, err := rows.ParseLayout(records[0])
	if err != nil {
		return err
	}
	codeCol, _ := layout.Column(rows.ColTaskID)
	statusCol, ok := layout.Column(rows.ColStatus)
	if !ok {
		return fmt.Errorf("station %s has no status column", station)
	}

	found := false
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if codeCol >= len(rec) || strings.TrimSpace(rec[codeCol]) != taskID {
			continue
		}
		for len(rec) <= statusCol {
			rec = append(rec, "")
		}
		rec[statusCol] = string(status)
		records[i] = rec
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%w: %s at %s", ErrTaskNotFound, taskID, station)
	}
	return s.replace(station, records)
}

func (s *Source) replace(station model.Station, records [][]string) error {
	dst := s.path(station)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".hubsync-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write station file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
