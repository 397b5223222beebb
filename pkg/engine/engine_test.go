package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/drift"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

type write struct {
	taskID  string
	status  model.Status
	station model.Station
}

type fakeSource struct {
	mu       sync.Mutex
	tasks    map[model.Station][]model.Task
	fail     map[model.Station]error
	writeErr error
	writes   []write
	fetches  int

	started    chan struct{}                  // receives once per fetch when set
	release    chan struct{}                  // fetches block on it when set
	writeGate  chan struct{}                  // writes block on it when set
	writeDelay map[model.Status]time.Duration // per-status write latency
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tasks:      make(map[model.Station][]model.Task),
		fail:       make(map[model.Station]error),
		writeDelay: make(map[model.Status]time.Duration),
	}
}

// FetchTasks reads the rows before blocking, like a request whose response
// is already on the wire.
func (f *fakeSource) FetchTasks(ctx context.Context, station model.Station) ([]model.Task, error) {
	f.mu.Lock()
	f.fetches++
	started, release := f.started, f.release
	err := f.fail[station]
	rows := append([]model.Task(nil), f.tasks[station]...)
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteStatus records the write and, when it succeeds, applies it to the
// rows later fetches return.
func (f *fakeSource) WriteStatus(ctx context.Context, taskID string, status model.Status, station model.Station) error {
	f.mu.Lock()
	gate, delay := f.writeGate, f.writeDelay[status]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{taskID, status, station})
	if f.writeErr != nil {
		return f.writeErr
	}
	for i := range f.tasks[station] {
		if f.tasks[station][i].TaskID == taskID {
			f.tasks[station][i].Status = status
		}
	}
	return nil
}

func (f *fakeSource) remoteStatus(station model.Station, taskID string) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[station] {
		if t.TaskID == taskID {
			return t.Status
		}
	}
	return ""
}

func (f *fakeSource) writeLog() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

func task(id, courier string, station model.Station, packages int, status model.Status) model.Task {
	return model.Task{
		ID:           id,
		TaskID:       "AT-" + id,
		Courier:      model.ParseCourier(courier),
		Station:      station,
		PackageCount: packages,
		Status:       status,
	}
}

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestEngine(src *fakeSource, stations ...model.Station) *Engine {
	return New(src, Options{
		Stations:    stations,
		RetainStale: true,
		Logger:      quietLog,
		Now:         func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
	})
}

func TestRefreshPartialFailure(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A [Ops1]", "S1", 2, model.Pending), task("2", "B [Ops2]", "S1", 3, model.Pending)}
	src.tasks["S2"] = []model.Task{task("3", "C [Ops3]", "S2", 1, model.Pending)}
	src.tasks["S3"] = []model.Task{task("4", "D [Ops4]", "S3", 5, model.Ongoing)}
	src.fail["S2"] = errors.New("sheet unavailable")

	e := newTestEngine(src, "S1", "S2", "S3")
	res, err := e.Refresh(context.Background(), RefreshOptions{})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	got := e.Snapshot()
	want := []string{"1", "2", "4"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d tasks, got %d: %+v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Task %d: expected id %s, got %s", i, id, got[i].ID)
		}
	}
	var fe *FetchError
	if !errors.As(res.Errors["S2"], &fe) || fe.Station != "S2" {
		t.Errorf("Expected FetchError for S2, got %v", res.Errors["S2"])
	}
	if len(res.Failed) != 1 || res.Failed[0] != "S2" {
		t.Errorf("Expected S2 to be reported failed, got %v", res.Failed)
	}
}

func TestRefreshRetainsStaleStation(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	src.tasks["S2"] = []model.Task{task("2", "B", "S2", 1, model.Pending)}
	e := newTestEngine(src, "S1", "S2")
	if _, err := e.Refresh(context.Background(), RefreshOptions{}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	src.mu.Lock()
	src.fail["S2"] = errors.New("timeout")
	src.tasks["S1"] = []model.Task{task("5", "A", "S1", 4, model.Pending)}
	src.mu.Unlock()
	if _, err := e.Refresh(context.Background(), RefreshOptions{}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	got := e.Snapshot()
	if len(got) != 2 || got[0].ID != "5" || got[1].ID != "2" {
		t.Fatalf("Expected fresh S1 and retained S2, got %+v", got)
	}
	states := e.StationStates()
	if states[0].Stale || !states[1].Stale || states[1].LastError == "" {
		t.Errorf("Unexpected station states: %+v", states)
	}
}

func TestRefreshFullReplaceWithoutRetain(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	e := New(src, Options{Stations: []model.Station{"S1"}, Logger: quietLog})
	e.Refresh(context.Background(), RefreshOptions{})

	src.mu.Lock()
	src.fail["S1"] = errors.New("down")
	src.mu.Unlock()
	e.Refresh(context.Background(), RefreshOptions{})

	if got := e.Snapshot(); len(got) != 0 {
		t.Errorf("Expected failed station to drop its tasks, got %+v", got)
	}
}

func TestRefreshDropsDuplicateIDs(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	src.tasks["S2"] = []model.Task{task("1", "A", "S2", 1, model.Pending), task("2", "B", "S2", 1, model.Pending)}
	e := newTestEngine(src, "S1", "S2")
	e.Refresh(context.Background(), RefreshOptions{})

	got := e.Snapshot()
	if len(got) != 2 || got[0].Station != "S1" || got[1].ID != "2" {
		t.Errorf("Expected first occurrence kept, got %+v", got)
	}
}

func TestRefreshNoStations(t *testing.T) {
	e := newTestEngine(newFakeSource())
	if _, err := e.Refresh(context.Background(), RefreshOptions{}); !errors.Is(err, ErrNoStations) {
		t.Errorf("Expected ErrNoStations, got %v", err)
	}
}

func TestRefreshRejectsConcurrentRequest(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	src.started = make(chan struct{}, 1)
	src.release = make(chan struct{})
	e := newTestEngine(src, "S1")

	done := make(chan error, 1)
	go func() {
		_, err := e.Refresh(context.Background(), RefreshOptions{})
		done <- err
	}()
	<-src.started

	if !e.Refreshing() {
		t.Error("Expected engine to report refreshing")
	}
	if _, err := e.Refresh(context.Background(), RefreshOptions{}); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("Expected ErrRefreshInProgress, got %v", err)
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("First refresh failed: %v", err)
	}
	src.mu.Lock()
	fetches := src.fetches
	src.mu.Unlock()
	if fetches != 1 {
		t.Errorf("Expected a single fetch, got %d", fetches)
	}
	if len(e.Snapshot()) != 1 {
		t.Errorf("Expected one published task")
	}
}

type fakeSummarizer struct {
	calls int
	err   error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, tasks []model.Task) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "all good", nil
}

func TestRefreshInsight(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	sum := &fakeSummarizer{}
	e := New(src, Options{Stations: []model.Station{"S1"}, Insight: sum, Logger: quietLog})

	e.Refresh(context.Background(), RefreshOptions{})
	e.Refresh(context.Background(), RefreshOptions{})
	if sum.calls != 1 {
		t.Errorf("Expected automatic refresh to reuse the insight, got %d calls", sum.calls)
	}
	e.Refresh(context.Background(), RefreshOptions{Manual: true})
	if sum.calls != 2 {
		t.Errorf("Expected manual refresh to regenerate the insight, got %d calls", sum.calls)
	}
	if e.Insight() != "all good" {
		t.Errorf("Unexpected insight %q", e.Insight())
	}
}

func TestRefreshInsightFailureIsSwallowed(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	sum := &fakeSummarizer{err: errors.New("quota")}
	e := New(src, Options{Stations: []model.Station{"S1"}, Insight: sum, Logger: quietLog})

	if _, err := e.Refresh(context.Background(), RefreshOptions{}); err != nil {
		t.Fatalf("Refresh must not fail on insight errors: %v", err)
	}
	if e.Insight() != "" {
		t.Errorf("Expected no insight, got %q", e.Insight())
	}
}

func TestRefreshSkipsInsightWhenEmpty(t *testing.T) {
	sum := &fakeSummarizer{}
	e := New(newFakeSource(), Options{Stations: []model.Station{"S1"}, Insight: sum, Logger: quietLog})
	e.Refresh(context.Background(), RefreshOptions{Manual: true})
	if sum.calls != 0 {
		t.Errorf("Expected no insight call for an empty list, got %d", sum.calls)
	}
}

func TestSelectPacket(t *testing.T) {
	src := newFakeSource()
	done := task("2", "A [Ops1]", "S1", 2, model.Completed)
	done.LastUpdated = time.Date(2024, 4, 30, 17, 0, 0, 0, time.UTC)
	src.tasks["S1"] = []model.Task{task("1", "A [Ops1]", "S1", 3, model.Pending), done, task("3", "B [Ops2]", "S1", 1, model.Pending)}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})

	key := model.PacketKey{CourierName: "A [Ops1]", Station: "S1"}
	p, err := e.SelectPacket(context.Background(), key)
	if err != nil {
		t.Fatalf("SelectPacket failed: %v", err)
	}
	e.Wait()

	if p.Tasks[0].Status != model.Ongoing || p.Tasks[1].Status != model.Completed {
		t.Errorf("Expected [Ongoing, Completed], got [%s, %s]", p.Tasks[0].Status, p.Tasks[1].Status)
	}
	if !p.Tasks[1].LastUpdated.Equal(done.LastUpdated) {
		t.Errorf("Completed task timestamp must not change, got %v", p.Tasks[1].LastUpdated)
	}
	if p.Tasks[0].LastUpdated.IsZero() {
		t.Error("Transitioned task must be stamped")
	}
	if p.Status != model.Ongoing || p.TotalPackages != 5 {
		t.Errorf("Unexpected packet aggregate: %s / %d", p.Status, p.TotalPackages)
	}
	writes := src.writeLog()
	if len(writes) != 1 || writes[0] != (write{"AT-1", model.Ongoing, "S1"}) {
		t.Errorf("Expected one Ongoing write for AT-1, got %+v", writes)
	}
	if other, _ := e.Task("3"); other.Status != model.Pending {
		t.Errorf("Other couriers must be untouched, got %s", other.Status)
	}
}

func TestSelectUnknownPacket(t *testing.T) {
	e := newTestEngine(newFakeSource(), "S1")
	_, err := e.SelectPacket(context.Background(), model.PacketKey{CourierName: "nobody", Station: "S1"})
	if !errors.Is(err, ErrPacketNotFound) {
		t.Errorf("Expected ErrPacketNotFound, got %v", err)
	}
}

func TestCompleteTaskIsTerminal(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Ongoing)}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})

	for i := 0; i < 2; i++ {
		got, err := e.CompleteTask(context.Background(), "1")
		if err != nil {
			t.Fatalf("CompleteTask failed: %v", err)
		}
		if got.Status != model.Completed {
			t.Errorf("Call %d: expected Completed, got %s", i, got.Status)
		}
	}
	e.Wait()
	if writes := src.writeLog(); len(writes) != 1 {
		t.Errorf("Expected a single Completed write, got %+v", writes)
	}
	if _, err := e.SelectPacket(context.Background(), model.PacketKey{CourierName: "A", Station: "S1"}); err != nil {
		t.Fatalf("SelectPacket failed: %v", err)
	}
	if got, _ := e.Task("1"); got.Status != model.Completed {
		t.Errorf("Status regressed to %s", got.Status)
	}
}

func TestCompleteUnknownTask(t *testing.T) {
	e := newTestEngine(newFakeSource(), "S1")
	if _, err := e.CompleteTask(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestDetailAndSummaryAgree(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{
		task("1", "A [Ops1]", "S1", 1, model.Pending),
		task("2", "A [Ops1]", "S1", 2, model.Pending),
	}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()
	key := model.PacketKey{CourierName: "A [Ops1]", Station: "S1"}
	q := Query{Role: model.RoleAdmin}

	check := func(step string) {
		t.Helper()
		detail, ok := e.Packet(key, q)
		if !ok {
			t.Fatalf("%s: packet missing", step)
		}
		summary := e.View(q)[0]
		if detail.Status != summary.Status || len(detail.Tasks) != len(summary.Tasks) {
			t.Fatalf("%s: detail %+v disagrees with summary %+v", step, detail, summary)
		}
		for i := range detail.Tasks {
			if detail.Tasks[i] != summary.Tasks[i] {
				t.Errorf("%s: task %d differs: %+v vs %+v", step, i, detail.Tasks[i], summary.Tasks[i])
			}
		}
	}

	e.SelectPacket(ctx, key)
	check("after select")
	e.CompleteTask(ctx, "1")
	check("after first completion")
	e.CompleteTask(ctx, "2")
	check("after second completion")
	e.Wait()
	check("after writes")

	if p, _ := e.Packet(key, q); p.Status != model.Completed {
		t.Errorf("Expected packet Completed, got %s", p.Status)
	}
}

func TestWriteFailureKeepsOptimisticState(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Ongoing)}
	src.writeErr = errors.New("permission denied")
	table, err := drift.NewTable(filepath.Join(t.TempDir(), "drift.json"))
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	e := New(src, Options{Stations: []model.Station{"S1"}, Drift: table, Logger: quietLog})
	e.Refresh(context.Background(), RefreshOptions{})

	e.CompleteTask(context.Background(), "1")
	e.Wait()

	got, _ := e.Task("1")
	if got.Status != model.Completed {
		t.Errorf("Optimistic state lost: %s", got.Status)
	}
	if !got.Unsynced {
		t.Error("Expected task to be flagged unsynced")
	}
	if entry, ok := table.Lookup("AT-1", "S1"); !ok || entry.Status != model.Completed {
		t.Errorf("Expected drift entry, got %+v", entry)
	}

	// the remote still says Ongoing, so the next refresh keeps the flag
	e.Refresh(context.Background(), RefreshOptions{})
	if got, _ := e.Task("1"); !got.Unsynced || got.Status != model.Ongoing {
		t.Errorf("Expected remote status with unsynced flag, got %+v", got)
	}

	src.mu.Lock()
	src.writeErr = nil
	src.mu.Unlock()
	synced, err := e.Resync(context.Background())
	if err != nil || synced != 1 {
		t.Fatalf("Resync = %d, %v", synced, err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected drift table to be empty, got %d", table.Len())
	}
	if got, _ := e.Task("1"); got.Unsynced {
		t.Error("Expected unsynced flag to clear after resync")
	}
}

func TestTransitionWritesKeepOrder(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A [Ops1]", "S1", 1, model.Pending)}
	src.writeDelay[model.Ongoing] = 50 * time.Millisecond
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()

	if _, err := e.SelectPacket(ctx, model.PacketKey{CourierName: "A [Ops1]", Station: "S1"}); err != nil {
		t.Fatalf("SelectPacket failed: %v", err)
	}
	if _, err := e.CompleteTask(ctx, "1"); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	e.Wait()

	writes := src.writeLog()
	if len(writes) == 0 || writes[len(writes)-1].status != model.Completed {
		t.Fatalf("Expected Completed to be written last, got %+v", writes)
	}
	if got := src.remoteStatus("S1", "AT-1"); got != model.Completed {
		t.Errorf("Remote status regressed to %s", got)
	}
	e.Refresh(ctx, RefreshOptions{})
	if got, _ := e.Task("1"); got.Status != model.Completed || got.Unsynced {
		t.Errorf("Expected Completed and synced after refresh, got %+v", got)
	}
}

func TestSupersededWriteIsDropped(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending)}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()

	e.CompleteTask(ctx, "1")
	e.Wait()
	before := len(src.writeLog())

	stale, _ := e.Task("1")
	stale.Status = model.Ongoing
	e.relay(ctx, stale)
	e.Wait()

	if writes := src.writeLog(); len(writes) != before {
		t.Errorf("Expected the Ongoing write to be dropped, got %+v", writes)
	}
	if got := src.remoteStatus("S1", "AT-1"); got != model.Completed {
		t.Errorf("Remote status regressed to %s", got)
	}
}

func TestTransitionDuringRefreshSurvivesMerge(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Pending), task("2", "B", "S1", 1, model.Pending)}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()

	// task 2's write lands while the fetch below is in flight
	gate := make(chan struct{})
	src.mu.Lock()
	src.writeGate = gate
	src.started = make(chan struct{}, 1)
	src.release = make(chan struct{})
	release := src.release
	src.mu.Unlock()
	e.CompleteTask(ctx, "2")

	done := make(chan error, 1)
	go func() {
		_, err := e.Refresh(ctx, RefreshOptions{})
		done <- err
	}()
	<-src.started

	if _, err := e.CompleteTask(ctx, "1"); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	close(gate)
	e.Wait()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	for _, id := range []string{"1", "2"} {
		got, _ := e.Task(id)
		if got.Status != model.Completed || got.Unsynced {
			t.Errorf("Task %s: expected Completed and synced, got %s (unsynced=%v)", id, got.Status, got.Unsynced)
		}
	}
}

func TestPendingWriteSurvivesRefresh(t *testing.T) {
	src := newFakeSource()
	src.tasks["S1"] = []model.Task{task("1", "A", "S1", 1, model.Ongoing)}
	e := newTestEngine(src, "S1")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()

	gate := make(chan struct{})
	src.mu.Lock()
	src.writeGate = gate
	src.mu.Unlock()
	e.CompleteTask(ctx, "1")

	// the remote still says Ongoing and the write has not gone out
	e.Refresh(ctx, RefreshOptions{})
	if got, _ := e.Task("1"); got.Status != model.Completed {
		t.Errorf("Expected queued Completed to survive the refresh, got %s", got.Status)
	}

	close(gate)
	e.Wait()
	e.Refresh(ctx, RefreshOptions{})
	if got, _ := e.Task("1"); got.Status != model.Completed || got.Unsynced {
		t.Errorf("Expected Completed from the remote, got %+v", got)
	}
}

func TestConcurrentTransitionsAndRefresh(t *testing.T) {
	src := newFakeSource()
	couriers := []string{"A [Ops1]", "B [Ops2]", "C [Ops3]", "D [Ops4]"}
	var ids []string
	for i := 0; i < 20; i++ {
		station := model.Station("S1")
		if i%2 == 1 {
			station = "S2"
		}
		id := strconv.Itoa(i)
		ids = append(ids, id)
		src.tasks[station] = append(src.tasks[station], task(id, couriers[i%len(couriers)], station, 1, model.Pending))
	}
	src.writeDelay[model.Ongoing] = 2 * time.Millisecond
	e := newTestEngine(src, "S1", "S2")
	e.Refresh(context.Background(), RefreshOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, p := range e.View(Query{Role: model.RoleAdmin}) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.SelectPacket(ctx, p.Key); err != nil {
				t.Errorf("SelectPacket(%+v) failed: %v", p.Key, err)
			}
			for _, m := range p.Tasks {
				if _, err := e.CompleteTask(ctx, m.ID); err != nil {
					t.Errorf("CompleteTask(%s) failed: %v", m.ID, err)
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := e.Refresh(ctx, RefreshOptions{})
				if err != nil && !errors.Is(err, ErrRefreshInProgress) {
					t.Errorf("Refresh failed: %v", err)
				}
				e.View(Query{Role: model.RoleAdmin})
			}
		}()
	}
	wg.Wait()
	e.Wait()

	for _, id := range ids {
		if got, _ := e.Task(id); got.Status != model.Completed {
			t.Errorf("Task %s regressed to %s", id, got.Status)
		}
	}
	e.Refresh(ctx, RefreshOptions{})
	for _, id := range ids {
		got, _ := e.Task(id)
		if got.Status != model.Completed || got.Unsynced {
			t.Errorf("Task %s after refresh: %s (unsynced=%v)", id, got.Status, got.Unsynced)
		}
		if remote := src.remoteStatus(got.Station, got.TaskID); remote != model.Completed {
			t.Errorf("Task %s remote status %s", id, remote)
		}
	}
}
