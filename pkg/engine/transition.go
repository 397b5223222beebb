package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

// SelectPacket moves every Pending task of the packet to Ongoing and relays
// each change to the remote source without waiting for it. The returned
// packet is rebuilt from the merged list after the change.
func (e *Engine) SelectPacket(ctx context.Context, key model.PacketKey) (model.WorkPacket, error) {
	e.mu.Lock()
	var members, changed []model.Task
	now := e.now()
	for i := range e.tasks {
		t := &e.tasks[i]
		if model.KeyOf(*t) != key {
			continue
		}
		if t.Status == model.Pending {
			t.Status = model.Ongoing
			t.LastUpdated = now
			e.touched[t.ID] = e.epoch
			changed = append(changed, *t)
		}
		members = append(members, *t)
	}
	e.mu.Unlock()

	if len(members) == 0 {
		return model.WorkPacket{}, fmt.Errorf("%w: %s at %s", ErrPacketNotFound, key.CourierName, key.Station)
	}
	for _, t := range changed {
		e.relay(ctx, t)
	}
	packets := Group(members)
	return packets[0], nil
}

// CompleteTask marks one task Completed. A task that is already Completed is
// returned unchanged and nothing is written.
func (e *Engine) CompleteTask(ctx context.Context, id string) (model.Task, error) {
	e.mu.Lock()
	i, ok := e.index[id]
	if !ok {
		e.mu.Unlock()
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t := &e.tasks[i]
	if t.Status.IsTerminal() {
		done := *t
		e.mu.Unlock()
		return done, nil
	}
	t.Status = model.Completed
	t.LastUpdated = e.now()
	e.touched[id] = e.epoch
	updated := *t
	e.mu.Unlock()

	e.relay(ctx, updated)
	return updated, nil
}

type pendingWrite struct {
	ctx  context.Context
	task model.Task
}

// relay queues a transition for the remote source and returns without
// waiting. Writes for one task run one at a time in the order they were
// queued. A failed write keeps the local state, flags the task unsynced, and
// is recorded in the drift table. It is not retried.
func (e *Engine) relay(ctx context.Context, t model.Task) {
	e.writes.Add(1)
	e.qmu.Lock()
	q, running := e.queues[t.ID]
	e.queues[t.ID] = append(q, pendingWrite{ctx: ctx, task: t})
	e.qmu.Unlock()
	if !running {
		go e.drain(t.ID)
	}
}

func (e *Engine) drain(id string) {
	for {
		e.qmu.Lock()
		q := e.queues[id]
		if len(q) == 0 {
			delete(e.queues, id)
			e.qmu.Unlock()
			return
		}
		w := q[0]
		e.queues[id] = q[1:]
		e.qmu.Unlock()

		e.write(w.ctx, w.task)
		e.writes.Done()
	}
}

// writePending reports whether a write for id is queued or in flight.
func (e *Engine) writePending(id string) bool {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	_, ok := e.queues[id]
	return ok
}

func (e *Engine) write(ctx context.Context, t model.Task) {
	if e.superseded(t) {
		e.log.Debug("status write superseded", "task_id", t.TaskID, "station", t.Station, "status", t.Status)
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.WriteTimeout)
	defer cancel()

	err := e.source.WriteStatus(wctx, t.TaskID, t.Status, t.Station)
	e.metrics.StatusWrite(t.Status, err == nil)
	if err != nil {
		werr := &WriteError{TaskID: t.TaskID, Station: t.Station, Status: t.Status, Err: err}
		e.log.Warn("status write failed", "task_id", t.TaskID, "station", t.Station, "status", t.Status, "error", werr)
		e.recordDrift(t, werr)
		e.settle(t.ID, t.Status, true)
		return
	}
	e.log.Debug("status written", "task_id", t.TaskID, "station", t.Station, "status", t.Status)
	e.clearDrift(t)
	e.settle(t.ID, t.Status, false)
}

// superseded reports whether the task has already moved past t.Status
// locally, so a later queued write carries the newer status.
func (e *Engine) superseded(t model.Task) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.index[t.ID]
	return ok && t.Status.CanAdvanceTo(e.tasks[i].Status)
}

// settle stamps the write into the current refresh epoch, since a fetch
// already in flight may predate it. The unsynced flag is updated only if the
// task still carries status.
func (e *Engine) settle(id string, status model.Status, unsynced bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched[id] = e.epoch
	if i, ok := e.index[id]; ok && e.tasks[i].Status == status {
		e.tasks[i].Unsynced = unsynced
	}
}

func (e *Engine) recordDrift(t model.Task, err error) {
	if e.opts.Drift == nil {
		return
	}
	e.opts.Drift.Record(t.TaskID, t.Station, t.Status, e.now(), err)
	if err := e.opts.Drift.Save(); err != nil {
		e.log.Warn("could not save drift table", "error", err)
	}
}

func (e *Engine) clearDrift(t model.Task) {
	if e.opts.Drift == nil {
		return
	}
	e.opts.Drift.Clear(t.TaskID, t.Station)
	if err := e.opts.Drift.Save(); err != nil {
		e.log.Warn("could not save drift table", "error", err)
	}
}

// Resync replays every recorded failed write synchronously. It returns the
// number of writes that went through and the joined errors of the rest.
func (e *Engine) Resync(ctx context.Context) (int, error) {
	if e.opts.Drift == nil {
		return 0, nil
	}
	var errs []error
	synced := 0
	for _, entry := range e.opts.Drift.Entries() {
		err := e.source.WriteStatus(ctx, entry.TaskID, entry.Status, entry.Station)
		e.metrics.StatusWrite(entry.Status, err == nil)
		if err != nil {
			werr := &WriteError{TaskID: entry.TaskID, Station: entry.Station, Status: entry.Status, Err: err}
			e.opts.Drift.Record(entry.TaskID, entry.Station, entry.Status, e.now(), werr)
			errs = append(errs, werr)
			continue
		}
		e.opts.Drift.Clear(entry.TaskID, entry.Station)
		e.clearUnsyncedByCode(entry.TaskID, entry.Station)
		synced++
	}
	if err := e.opts.Drift.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save drift table: %w", err))
	}
	return synced, errors.Join(errs...)
}

func (e *Engine) clearUnsyncedByCode(taskID string, station model.Station) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tasks {
		if e.tasks[i].TaskID == taskID && e.tasks[i].Station == station {
			e.tasks[i].Unsynced = false
		}
	}
}
