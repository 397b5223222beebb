// Package engine merges per-station task lists, derives courier work packets,
// and relays optimistic status transitions to the remote task source.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/drift"
	"github.com/harrisonrobin/hubsync/pkg/metrics"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

// TaskSource is the remote system of record, read per station and written per task.
type TaskSource interface {
	FetchTasks(ctx context.Context, station model.Station) ([]model.Task, error)
	WriteStatus(ctx context.Context, taskID string, status model.Status, station model.Station) error
}

// Summarizer produces a short narrative about the current tasks.
type Summarizer interface {
	Summarize(ctx context.Context, tasks []model.Task) (string, error)
}

// Options configures an Engine.
type Options struct {
	Stations         []model.Station
	RetainStale      bool
	FetchConcurrency int
	FetchTimeout     time.Duration
	WriteTimeout     time.Duration

	Insight Summarizer   // optional
	Drift   *drift.Table // optional
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// StationState is what the engine knows about one station's last fetch.
type StationState struct {
	Station     model.Station `json:"station"`
	Tasks       int           `json:"tasks"`
	Stale       bool          `json:"stale"`
	LastError   string        `json:"last_error,omitempty"`
	LastSuccess time.Time     `json:"last_success"`
}

// Engine owns the merged task list for a session. The fetch coordinator and
// the transition controller are its only writers.
type Engine struct {
	source  TaskSource
	opts    Options
	log     *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics

	refreshing atomic.Bool
	writes     sync.WaitGroup

	// queues holds the ordered status writes of each task id with a writer
	// running. A key is present until its writer has drained the queue.
	qmu    sync.Mutex
	queues map[string][]pendingWrite

	mu       sync.RWMutex
	tasks    []model.Task
	index    map[string]int
	stations map[model.Station]StationState
	insight  string
	// epoch counts refresh cycles; touched maps a task id to the epoch of its
	// latest local transition or settled write.
	epoch   uint64
	touched map[string]uint64
}

// New creates an engine reading from source.
func New(source TaskSource, opts Options) *Engine {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	e := &Engine{
		source:   source,
		opts:     opts,
		log:      opts.Logger,
		now:      opts.Now,
		metrics:  opts.Metrics,
		index:    make(map[string]int),
		stations: make(map[model.Station]StationState),
		queues:   make(map[string][]pendingWrite),
		touched:  make(map[string]uint64),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Stations returns the configured stations in fetch order.
func (e *Engine) Stations() []model.Station {
	return append([]model.Station(nil), e.opts.Stations...)
}

// Snapshot returns a copy of the current merged task list.
func (e *Engine) Snapshot() []model.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Task(nil), e.tasks...)
}

// Task returns one task by id.
func (e *Engine) Task(id string) (model.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.index[id]
	if !ok {
		return model.Task{}, false
	}
	return e.tasks[i], true
}

// StationStates reports the last fetch outcome of every configured station.
func (e *Engine) StationStates() []StationState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StationState, 0, len(e.opts.Stations))
	for _, s := range e.opts.Stations {
		st, ok := e.stations[s]
		if !ok {
			st = StationState{Station: s}
		}
		out = append(out, st)
	}
	return out
}

// Insight returns the latest narrative summary, if any.
func (e *Engine) Insight() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.insight
}

// Refreshing reports whether a refresh cycle is running.
func (e *Engine) Refreshing() bool {
	return e.refreshing.Load()
}

// View filters the current list for q and groups the result into packets.
func (e *Engine) View(q Query) []model.WorkPacket {
	return Group(Filter(e.Snapshot(), q))
}

// Packet returns the packet for key as seen through q. It is computed from
// the same list as View so both always agree; q.Status then narrows only the
// member list.
func (e *Engine) Packet(key model.PacketKey, q Query) (model.WorkPacket, bool) {
	status := q.Status
	q.Status = ""
	for _, p := range e.View(q) {
		if p.Key != key {
			continue
		}
		if status != "" {
			p.Tasks = keep(p.Tasks, func(t model.Task) bool { return t.Status == status })
		}
		return p, true
	}
	return model.WorkPacket{}, false
}

// Wait blocks until every in-flight status write has finished.
func (e *Engine) Wait() {
	e.writes.Wait()
}

func (e *Engine) reindexLocked() {
	e.index = make(map[string]int, len(e.tasks))
	for i, t := range e.tasks {
		e.index[t.ID] = i
	}
}
