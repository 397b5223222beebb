package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SchedulerState is the refresh state seen by the scheduler.
type SchedulerState string

const (
	StateIdle       SchedulerState = "idle"
	StateRefreshing SchedulerState = "refreshing"
)

// Refresher is the part of the engine the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context, opts RefreshOptions) (RefreshResult, error)
	Refreshing() bool
}

// Scheduler refreshes periodically while a session is active and automatic
// refresh is enabled. Ticks that arrive during a refresh are dropped.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	log       *slog.Logger

	mu          sync.Mutex
	active      bool
	autoRefresh bool
	wake        chan struct{}
	inflight    sync.WaitGroup
}

// NewScheduler creates a scheduler with automatic refresh enabled and no
// active session.
func NewScheduler(r Refresher, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		refresher:   r,
		interval:    interval,
		log:         log,
		autoRefresh: true,
		wake:        make(chan struct{}, 1),
	}
}

// State reports Idle or Refreshing.
func (s *Scheduler) State() SchedulerState {
	if s.refresher.Refreshing() {
		return StateRefreshing
	}
	return StateIdle
}

// SetSessionActive starts or stops the timer for the session.
func (s *Scheduler) SetSessionActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
	s.poke()
}

// SessionActive reports whether a session is signed in.
func (s *Scheduler) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetAutoRefresh enables or disables the timer.
func (s *Scheduler) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	s.autoRefresh = enabled
	s.mu.Unlock()
	s.poke()
}

// AutoRefresh reports whether automatic refresh is enabled.
func (s *Scheduler) AutoRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRefresh
}

func (s *Scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.autoRefresh
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Trigger runs an explicit refresh and waits for it.
func (s *Scheduler) Trigger(ctx context.Context) (RefreshResult, error) {
	return s.refresher.Refresh(ctx, RefreshOptions{Manual: true})
}

// Run drives the timer until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time
	reset := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if s.running() {
			ticker = time.NewTicker(s.interval)
			tick = ticker.C
		}
	}
	reset()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		s.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			reset()
		case <-tick:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.refresher.Refreshing() {
		s.log.Debug("refresh tick dropped")
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_, err := s.refresher.Refresh(ctx, RefreshOptions{})
		switch {
		case errors.Is(err, ErrRefreshInProgress):
			s.log.Debug("refresh tick dropped")
		case err != nil:
			s.log.Warn("scheduled refresh failed", "error", err)
		}
	}()
}
