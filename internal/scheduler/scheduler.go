// Package scheduler drives refresh cycles from a timer and manual requests
// and decides which completed cycle gets rendered.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/internal/aggregator"
	"floodwatch/internal/config"
	"floodwatch/internal/logging"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/render"
)

const (
	TriggerInitial = "initial"
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
)

type Refresher interface {
	Refresh(ctx context.Context, baseURL, locationID string) (*model.Snapshot, error)
}

type Applier interface {
	Apply(ctx context.Context, seq uint64, snap *model.Snapshot) *render.Frame
}

type Options struct {
	BaseURL     string
	LocationID  string
	Interval    time.Duration
	StalePolicy string
}

// state is the only mutable data shared between cycles.
type state struct {
	baseURL    string
	locationID string
	status     Status
	snapshot   *model.Snapshot
	appliedSeq uint64
}

type Scheduler struct {
	refresher Refresher
	board     Applier
	metrics   *metrics.Store
	logger    *slog.Logger
	interval  atomic.Int64
	policy    atomic.Value
	seq       atomic.Uint64
	mu        sync.Mutex
	st        state
	throttle  *logging.Throttle
	now       func() time.Time
}

func New(refresher Refresher, board Applier, metricsStore *metrics.Store, logger *slog.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		refresher: refresher,
		board:     board,
		metrics:   metricsStore,
		logger:    logger,
		throttle:  logging.NewThrottle(30 * time.Second),
		now:       time.Now,
	}
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.StalePolicy == "" {
		opts.StalePolicy = config.StalePolicyDiscard
	}
	s.interval.Store(int64(opts.Interval))
	s.policy.Store(opts.StalePolicy)
	s.st = state{
		baseURL:    config.NormalizeBaseURL(opts.BaseURL),
		locationID: opts.LocationID,
		status:     newStatus(StateConnecting, "", 0, s.now().UTC()),
	}
	return s
}

// UpdateTarget changes the base address and location used by later cycles.
func (s *Scheduler) UpdateTarget(baseURL, locationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.baseURL = config.NormalizeBaseURL(baseURL)
	s.st.locationID = locationID
}

// UpdateConfig applies refresh settings from a reloaded config.
func (s *Scheduler) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.UpdateTarget(cfg.Remote.BaseURL, cfg.Remote.LocationID)
	if cfg.Refresh.Interval > 0 {
		s.interval.Store(int64(cfg.Refresh.Interval))
	}
	if cfg.Refresh.StalePolicy != "" {
		s.policy.Store(cfg.Refresh.StalePolicy)
	}
}

func (s *Scheduler) Target() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.baseURL, s.st.locationID
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.status
}

// Snapshot returns the Snapshot behind the current Frame, or nil.
func (s *Scheduler) Snapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot
}

func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

func (s *Scheduler) stalePolicy() string {
	if v, ok := s.policy.Load().(string); ok {
		return v
	}
	return config.StalePolicyDiscard
}

// Run performs the first load, then refreshes on every tick until ctx ends.
// Ticks do not wait for earlier cycles to finish.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	spawn := func(trigger string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runCycle(ctx, trigger)
		}()
	}

	spawn(TriggerInitial)
	current := s.Interval()
	ticker := time.NewTicker(current)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.OnTimerTick(ctx, spawn)
			if next := s.Interval(); next != current {
				current = next
				ticker.Reset(current)
			}
		case <-ctx.Done():
			return
		}
	}
}

// OnTimerTick starts a timer-triggered cycle through spawn.
func (s *Scheduler) OnTimerTick(ctx context.Context, spawn func(trigger string)) {
	if ctx.Err() != nil {
		return
	}
	spawn(TriggerTimer)
}

// OnManualRefresh runs one cycle synchronously and returns the resulting
// status. A cycle already in flight is not cancelled.
func (s *Scheduler) OnManualRefresh(ctx context.Context) Status {
	return s.runCycle(ctx, TriggerManual)
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) Status {
	seq := s.seq.Add(1)
	started := s.now().UTC()

	s.mu.Lock()
	baseURL, locationID := s.st.baseURL, s.st.locationID
	s.st.status = newStatus(StateConnecting, MessageFetching, s.st.appliedSeq, started)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Started()
	}

	snap, err := s.refresher.Refresh(ctx, baseURL, locationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	stat := metrics.CycleStat{
		Seq:        seq,
		Trigger:    trigger,
		StartedAt:  started,
		Duration:   s.now().UTC().Sub(started),
		LocationID: locationID,
	}
	stale := s.stalePolicy() == config.StalePolicyDiscard && seq < s.st.appliedSeq

	switch {
	case err != nil:
		stat.Outcome = metrics.OutcomeFailed
		stat.Error = err.Error()
		var ce *aggregator.CycleError
		if errors.As(err, &ce) {
			stat.Endpoint = ce.Endpoint
		}
		if !stale {
			s.st.status = newStatus(StateOffline, failedPrefix+err.Error(), s.st.appliedSeq, s.now().UTC())
		}
		level := slog.LevelWarn
		if !s.throttle.Allow(stat.Endpoint) {
			level = slog.LevelDebug
		}
		s.log(level, "refresh cycle failed", seq, trigger, "endpoint", stat.Endpoint, "stale", stale, "error", err)
	case stale:
		stat.Outcome = metrics.OutcomeDiscarded
		s.log(slog.LevelDebug, "discarded stale refresh", seq, trigger, "applied_seq", s.st.appliedSeq)
	default:
		stat.Outcome = metrics.OutcomeApplied
		s.board.Apply(ctx, seq, snap)
		s.st.snapshot = snap
		s.st.appliedSeq = seq
		s.st.status = newStatus(StateLive, MessageLive, seq, s.now().UTC())
		s.throttle.Clear()
		s.log(slog.LevelDebug, "refresh applied", seq, trigger, "alerts", len(snap.Alerts))
	}
	if s.metrics != nil {
		s.metrics.Record(stat)
	}
	return s.st.status
}

func (s *Scheduler) log(level slog.Level, msg string, seq uint64, trigger string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append([]any{"seq", seq, "trigger", trigger}, args...)
	s.logger.Log(context.Background(), level, msg, args...)
}
