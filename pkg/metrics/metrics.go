// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"time"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Counters
	refreshes       *prometheus.CounterVec
	refreshRejected prometheus.Counter
	fetchFailures   *prometheus.CounterVec
	statusWrites    *prometheus.CounterVec

	// Gauges
	tasksLoaded *prometheus.GaugeVec

	// Histograms
	refreshDuration prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubsync_refresh_total",
				Help: "Total number of completed refresh cycles",
			},
			[]string{"result"},
		),
		refreshRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hubsync_refresh_rejected_total",
				Help: "Refresh requests dropped because one was already running",
			},
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubsync_station_fetch_failures_total",
				Help: "Total number of failed station fetches",
			},
			[]string{"station"},
		),
		statusWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubsync_status_writes_total",
				Help: "Total number of status writes to the remote store",
			},
			[]string{"status", "result"},
		),
		tasksLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hubsync_tasks_loaded",
				Help: "Tasks held for each station after the last refresh",
			},
			[]string{"station"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hubsync_refresh_duration_seconds",
				Help:    "Duration of refresh cycles",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
	}

	reg.MustRegister(
		m.refreshes,
		m.refreshRejected,
		m.fetchFailures,
		m.statusWrites,
		m.tasksLoaded,
		m.refreshDuration,
	)
	return m
}

// ObserveRefresh records a finished refresh cycle.
func (m *Metrics) ObserveRefresh(d time.Duration, complete bool) {
	if m == nil {
		return
	}
	result := "complete"
	if !complete {
		result = "partial"
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) RefreshRejected() {
	if m == nil {
		return
	}
	m.refreshRejected.Inc()
}

func (m *Metrics) StationFetchFailed(station model.Station) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(string(station)).Inc()
}

func (m *Metrics) SetStationTasks(station model.Station, n int) {
	if m == nil {
		return
	}
	m.tasksLoaded.WithLabelValues(string(station)).Set(float64(n))
}

func (m *Metrics) StatusWrite(status model.Status, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.statusWrites.WithLabelValues(string(status), result).Inc()
}
