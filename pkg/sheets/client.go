// Package sheets reads station task lists from a Google Sheets spreadsheet
// and writes task status back to it. Each station is one tab named after it.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/harrisonrobin/hubsync/pkg/index"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/harrisonrobin/hubsync/pkg/rows"
	"google.golang.org/api/sheets/v4"
)

// ErrTaskNotFound is returned when a status write names a task that is not in
// the station's tab.
var ErrTaskNotFound = errors.New("task not found in sheet")

// Client is a Google Sheets backed task source.
type Client struct {
	srv           *sheets.Service
	spreadsheetID string
	index         *index.RowIndex
	log           *slog.Logger

	mu      sync.Mutex
	layouts map[model.Station]rows.Layout
}

// NewClient creates a client for one spreadsheet. idx may be nil.
func NewClient(srv *sheets.Service, spreadsheetID string, idx *index.RowIndex, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		index:         idx,
		log:           log,
		layouts:       make(map[model.Station]rows.Layout),
	}
}

// FetchTasks reads every task row of the station's tab.
func (c *Client) FetchTasks(ctx context.Context, station model.Station) ([]model.Task, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, a1(station, "A1:Z")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to read station sheet: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	header := rows.Strings(resp.Values[0])
	data := make([][]string, 0, len(resp.Values)-1)
	for _, r := range resp.Values[1:] {
		data = append(data, rows.Strings(r))
	}
	res, err := rows.Decode(station, header, data)
	if err != nil {
		return nil, err
	}
	for _, s := range res.Skipped {
		c.log.Warn("skipping sheet row", "station", station, "row", s.Row, "reason", s.Reason)
	}

	layout, _ := rows.ParseLayout(header)
	c.mu.Lock()
	c.layouts[station] = layout
	c.mu.Unlock()

	if c.index != nil {
		for code, row := range res.RowOf {
			c.index.Set(string(station), code, row)
		}
		if err := c.index.Save(); err != nil {
			c.log.Warn("could not save row index", "error", err)
		}
	}
	return res.Tasks, nil
}

// WriteStatus sets the status cell of the task's row.
func (c *Client) WriteStatus(ctx context.Context, taskID string, status model.Status, station model.Station) error {
	layout, err := c.layout(ctx, station)
	if err != nil {
		return err
	}
	codeCol, _ := layout.Column(rows.ColTaskID)
	statusCol, ok := layout.Column(rows.ColStatus)
	if !ok {
		return fmt.Errorf("station %s has no status column", station)
	}

	row, err := c.findRow(ctx, station, taskID, codeCol)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data: []*sheets.ValueRange{{
			Range:  a1(station, fmt.Sprintf("%s%d", ColumnLetter(statusCol), row)),
			Values: [][]interface{}{{string(status)}},
		}},
	}
	if _, err := c.srv.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to update status cell: %w", err)
	}
	return nil
}

// findRow resolves the sheet row of a task, trying the row index before
// scanning the task code column.
func (c *Client) findRow(ctx context.Context, station model.Station, taskID string, codeCol int) (int, error) {
	letter := ColumnLetter(codeCol)

	// 1. Try the cached row, confirming it still holds the task.
	if c.index != nil {
		if row := c.index.Get(string(station), taskID); row > 0 {
			cell, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, a1(station, fmt.Sprintf("%s%d", letter, row))).Context(ctx).Do()
			if err == nil && len(cell.Values) > 0 && len(cell.Values[0]) > 0 &&
				strings.TrimSpace(rows.Strings(cell.Values[0])[0]) == taskID {
				return row, nil
			}
		}
	}

	// 2. Fall back to scanning the column.
	col, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, a1(station, fmt.Sprintf("%s2:%s", letter, letter))).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("error searching for task: %w", err)
	}
	for i, r := range col.Values {
		if len(r) == 0 || strings.TrimSpace(rows.Strings(r)[0]) != taskID {
			continue
		}
		row := i + 2
		if c.index != nil {
			c.index.Set(string(station), taskID, row)
			if err := c.index.Save(); err != nil {
				c.log.Warn("could not save row index", "error", err)
			}
		}
		return row, nil
	}
	if c.index != nil {
		c.index.Remove(string(station), taskID)
	}
	return 0, fmt.Errorf("%w: %s at %s", ErrTaskNotFound, taskID, station)
}

// layout returns the station's header layout, reading the header row when
// the station has not been fetched yet.
func (c *Client) layout(ctx context.Context, station model.Station) (rows.Layout, error) {
	c.mu.Lock()
	l, ok := c.layouts[station]
	c.mu.Unlock()
	if ok {
		return l, nil
	}

	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, a1(station, "1:1")).Context(ctx).Do()
	if err != nil {
		return rows.Layout{}, fmt.Errorf("unable to read header row: %w", err)
	}
	var header []string
	if len(resp.Values) > 0 {
		header = rows.Strings(resp.Values[0])
	}
	l, err = rows.ParseLayout(header)
	if err != nil {
		return rows.Layout{}, err
	}
	c.mu.Lock()
	c.layouts[station] = l
	c.mu.Unlock()
	return l, nil
}

// a1 builds an A1 range on the station's tab.
func a1(station model.Station, ref string) string {
	return "'" + strings.ReplaceAll(string(station), "'", "''") + "'!" + ref
}

// ColumnLetter converts a 0-based column index to its A1 letters.
func ColumnLetter(i int) string {
	s := ""
	for i++; i > 0; i = (i - 1) / 26 {
		s = string(rune('A'+(i-1)%26)) + s
	}
	return s
}
