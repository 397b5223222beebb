// Package rows decodes spreadsheet-style station rows into tasks.
package rows

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

// Column names understood by the decoder.
const (
	ColID          = "id"
	ColTaskID      = "task_id"
	ColCourier     = "courier"
	ColStation     = "station"
	ColPackages    = "packages"
	ColStatus      = "status"
	ColLastUpdated = "last_updated"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

var aliases = map[string]string{
	"id":            ColID,
	"task id":       ColTaskID,
	"taskid":        ColTaskID,
	"task_id":       ColTaskID,
	"at":            ColTaskID,
	"assignment":    ColTaskID,
	"courier":       ColCourier,
	"courier name":  ColCourier,
	"driver":        ColCourier,
	"station":       ColStation,
	"hub":           ColStation,
	"packages":      ColPackages,
	"package count": ColPackages,
	"paket":         ColPackages,
	"qty":           ColPackages,
	"status":        ColStatus,
	"last updated":  ColLastUpdated,
	"updated":       ColLastUpdated,
}

var required = []string{ColTaskID, ColCourier, ColPackages}

// idNamespace seeds derived task IDs for sheets without an ID column.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("hubsync://tasks"))

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// Layout maps canonical column names to positions in a header row.
type Layout struct {
	cols map[string]int
}

// ParseLayout reads a header row.
func ParseLayout(header []string) (Layout, error) {
	l := Layout{cols: make(map[string]int)}
	for i, h := range header {
		name, ok := aliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, seen := l.cols[name]; !seen {
			l.cols[name] = i
		}
	}
	for _, c := range required {
		if _, ok := l.cols[c]; !ok {
			return Layout{}, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return l, nil
}

// Column returns the index of a canonical column.
func (l Layout) Column(name string) (int, bool) {
	i, ok := l.cols[name]
	return i, ok
}

func (l Layout) cell(row []string, name string) string {
	i, ok := l.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Skipped describes a row the decoder could not use.
type Skipped struct {
	Row    int // 1-based sheet row number
	Reason string
}

// Result is the outcome of decoding one station.
type Result struct {
	Tasks   []model.Task
	RowOf   map[string]int // task code -> 1-based sheet row
	Skipped []Skipped
}

// Decode turns a header plus data rows into tasks for station. Rows keep
// their source order; a later row repeating an ID is skipped.
func Decode(station model.Station, header []string, data [][]string) (Result, error) {
	layout, err := ParseLayout(header)
	if err != nil {
		return Result{}, err
	}
	res := Result{RowOf: make(map[string]int)}
	seen := make(map[string]bool)
	for i, row := range data {
		sheetRow := i + 2
		code := layout.cell(row, ColTaskID)
		if code == "" {
			continue
		}
		t, err := layout.decodeRow(station, row)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Row: sheetRow, Reason: err.Error()})
			continue
		}
		if seen[t.ID] {
			res.Skipped = append(res.Skipped, Skipped{Row: sheetRow, Reason: "duplicate id " + t.ID})
			continue
		}
		seen[t.ID] = true
		if _, ok := res.RowOf[code]; !ok {
			res.RowOf[code] = sheetRow
		}
		res.Tasks = append(res.Tasks, t)
	}
	return res, nil
}

func (l Layout) decodeRow(station model.Station, row []string) (model.Task, error) {
	code := l.cell(row, ColTaskID)
	count, err := strconv.Atoi(l.cell(row, ColPackages))
	if err != nil {
		return model.Task{}, fmt.Errorf("invalid package count for %s: %w", code, err)
	}
	if count < 0 {
		return model.Task{}, fmt.Errorf("negative package count for %s", code)
	}
	status, err := model.ParseStatus(l.cell(row, ColStatus))
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", code, err)
	}
	id := l.cell(row, ColID)
	if id == "" {
		id = DeriveID(station, code)
	}
	return model.Task{
		ID:           id,
		TaskID:       code,
		Courier:      model.ParseCourier(l.cell(row, ColCourier)),
		Station:      station,
		PackageCount: count,
		Status:       status,
		LastUpdated:  parseTime(l.cell(row, ColLastUpdated)),
	}, nil
}

// DeriveID returns the stable identifier of a task that has no ID cell.
func DeriveID(station model.Station, taskID string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(station)+"/"+taskID)).String()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Strings converts a row of arbitrary cell values, as returned by the Sheets
// API, into strings.
func Strings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch c := v.(type) {
		case string:
			out[i] = c
		case nil:
		case float64:
			out[i] = strconv.FormatFloat(c, 'f', -1, 64)
		default:
			out[i] = fmt.Sprint(c)
		}
	}
	return out
}
