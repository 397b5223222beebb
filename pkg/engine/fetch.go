package engine

import (
	"context"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"golang.org/x/sync/errgroup"
)

// RefreshOptions tunes a single refresh cycle.
type RefreshOptions struct {
	// Manual marks a user-requested refresh; it always regenerates the insight.
	Manual bool
}

// RefreshResult summarizes a completed refresh cycle.
type RefreshResult struct {
	Tasks     int                     `json:"tasks"`
	Errors    map[model.Station]error `json:"-"`
	Failed    []model.Station         `json:"failed,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"-"`
}

type stationFetch struct {
	station model.Station
	tasks   []model.Task
	err     error
}

// Refresh fetches every configured station and publishes the merged list.
// Stations are fetched concurrently and independently; the list is replaced
// only after all fetches have returned. A call made while another refresh is
// running returns ErrRefreshInProgress and changes nothing.
func (e *Engine) Refresh(ctx context.Context, opts RefreshOptions) (RefreshResult, error) {
	if len(e.opts.Stations) == 0 {
		return RefreshResult{}, ErrNoStations
	}
	if !e.refreshing.CompareAndSwap(false, true) {
		e.metrics.RefreshRejected()
		return RefreshResult{}, ErrRefreshInProgress
	}
	defer e.refreshing.Store(false)

	started := e.now()
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.mu.Unlock()
	fetched := e.fetchAll(ctx)

	res := RefreshResult{StartedAt: started, Errors: make(map[model.Station]error)}
	for _, f := range fetched {
		if f.err != nil {
			res.Errors[f.station] = f.err
			res.Failed = append(res.Failed, f.station)
		}
	}

	e.mu.Lock()
	merged := e.mergeLocked(fetched, started, epoch)
	e.tasks = merged
	e.reindexLocked()
	res.Tasks = len(merged)
	needInsight := len(merged) > 0 && e.opts.Insight != nil && (e.insight == "" || opts.Manual)
	e.mu.Unlock()

	res.Duration = time.Since(started)
	e.metrics.ObserveRefresh(res.Duration, len(res.Failed) == 0)
	e.log.Info("refresh complete", "tasks", res.Tasks, "failed_stations", len(res.Failed), "duration", res.Duration)

	if needInsight {
		e.refreshInsight(ctx, merged)
	}
	return res, nil
}

func (e *Engine) fetchAll(ctx context.Context) []stationFetch {
	out := make([]stationFetch, len(e.opts.Stations))
	var g errgroup.Group
	g.SetLimit(e.opts.FetchConcurrency)
	for i, station := range e.opts.Stations {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
			defer cancel()
			tasks, err := e.source.FetchTasks(fctx, station)
			if err != nil {
				err = &FetchError{Station: station, Err: err}
				e.log.Warn("station fetch failed", "station", station, "error", err)
				e.metrics.StationFetchFailed(station)
			}
			out[i] = stationFetch{station: station, tasks: tasks, err: err}
			// never cancel sibling fetches
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// mergeLocked builds the new list in station order. A failed station keeps
// its previously published tasks when RetainStale is set. A fetched task
// that is behind a local transition keeps the local status when the
// transition or its write happened during this cycle, or the write is still
// queued.
func (e *Engine) mergeLocked(fetched []stationFetch, at time.Time, epoch uint64) []model.Task {
	var prior map[model.Station][]model.Task
	if e.opts.RetainStale {
		prior = make(map[model.Station][]model.Task)
		for _, t := range e.tasks {
			prior[t.Station] = append(prior[t.Station], t)
		}
	}

	merged := make([]model.Task, 0, len(e.tasks))
	seen := make(map[string]bool, len(e.tasks))
	for _, f := range fetched {
		state := e.stations[f.station]
		state.Station = f.station

		tasks := f.tasks
		if f.err != nil {
			tasks = prior[f.station]
			state.Stale = len(tasks) > 0
			state.LastError = f.err.Error()
		} else {
			state.Stale = false
			state.LastError = ""
			state.LastSuccess = at
		}

		count := 0
		for _, t := range tasks {
			t.Station = f.station
			if seen[t.ID] {
				e.log.Warn("duplicate task id dropped", "task_id", t.TaskID, "id", t.ID, "station", f.station)
				continue
			}
			seen[t.ID] = true
			if f.err == nil {
				if local, ok := e.aheadLocked(t, epoch); ok {
					t.Status, t.LastUpdated, t.Unsynced = local.Status, local.LastUpdated, local.Unsynced
				} else {
					t.Unsynced = e.driftDiffers(t)
				}
			}
			merged = append(merged, t)
			count++
		}
		state.Tasks = count
		e.stations[f.station] = state
		e.metrics.SetStationTasks(f.station, count)
	}
	clear(e.touched)
	return merged
}

// aheadLocked returns the published task with t's id when its local status
// is ahead of the fetched one and the remote could not have seen it yet.
func (e *Engine) aheadLocked(t model.Task, epoch uint64) (model.Task, bool) {
	i, ok := e.index[t.ID]
	if !ok {
		return model.Task{}, false
	}
	local := e.tasks[i]
	if !t.Status.CanAdvanceTo(local.Status) {
		return model.Task{}, false
	}
	if e.touched[t.ID] >= epoch || e.writePending(t.ID) {
		return local, true
	}
	return model.Task{}, false
}

// driftDiffers reports whether a failed local write for t is still not
// reflected by the remote row.
func (e *Engine) driftDiffers(t model.Task) bool {
	if e.opts.Drift == nil {
		return false
	}
	entry, ok := e.opts.Drift.Lookup(t.TaskID, t.Station)
	return ok && entry.Status != t.Status
}

func (e *Engine) refreshInsight(ctx context.Context, tasks []model.Task) {
	text, err := e.opts.Insight.Summarize(ctx, tasks)
	if err != nil {
		e.log.Debug("insight unavailable", "error", err)
		return
	}
	e.mu.Lock()
	e.insight = text
	e.mu.Unlock()
}
