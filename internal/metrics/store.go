package metrics

import (
	"sync"
	"time"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeFailed    Outcome = "failed"
	OutcomeDiscarded Outcome = "discarded"
)

// CycleStat records how one refresh cycle ended.
type CycleStat struct {
	Seq        uint64        `json:"seq"`
	Trigger    string        `json:"trigger"`
	Outcome    Outcome       `json:"outcome"`
	Endpoint   string        `json:"endpoint,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	LocationID string        `json:"location_id"`
}

type Counters struct {
	Started            uint64            `json:"started"`
	Applied            uint64            `json:"applied"`
	Failed             uint64            `json:"failed"`
	Discarded          uint64            `json:"discarded"`
	FailuresByEndpoint map[string]uint64 `json:"failures_by_endpoint"`
	LastAppliedAt      time.Time         `json:"last_applied_at"`
	Windows            []WindowStats     `json:"windows"`
}

// Store keeps a bounded log of recent cycles plus running totals.
type Store struct {
	mu         sync.RWMutex
	buf        []CycleStat
	limit      int
	started    uint64
	applied    uint64
	failed     uint64
	discarded  uint64
	byEndpoint map[string]uint64
	lastApply  time.Time
	windows    []*Window
	now        func() time.Time
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 500
	}
	s := &Store{limit: limit, byEndpoint: make(map[string]uint64), now: time.Now}
	s.resetWindows()
	return s
}

func (s *Store) resetWindows() {
	s.windows = make([]*Window, 0, len(DefaultWindows))
	for _, d := range DefaultWindows {
		s.windows = append(s.windows, NewWindow(d))
	}
}

func (s *Store) Started() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
}

func (s *Store) Record(stat CycleStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch stat.Outcome {
	case OutcomeApplied:
		s.applied++
		s.lastApply = stat.StartedAt.Add(stat.Duration)
	case OutcomeFailed:
		s.failed++
		if stat.Endpoint != "" {
			s.byEndpoint[stat.Endpoint]++
		}
	case OutcomeDiscarded:
		s.discarded++
	}
	if stat.Outcome != OutcomeDiscarded {
		at := stat.StartedAt.Add(stat.Duration)
		if at.IsZero() {
			at = s.now()
		}
		for _, w := range s.windows {
			w.Add(at, stat.Outcome == OutcomeFailed, stat.Endpoint)
		}
	}
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, stat)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = stat
}

// List returns up to limit of the most recent cycles, oldest first.
func (s *Store) List(limit int) []CycleStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]CycleStat, limit)
	copy(out, s.buf[len(s.buf)-limit:])
	return out
}

// Counters returns running totals plus the rolling window stats.
func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEndpoint := make(map[string]uint64, len(s.byEndpoint))
	for k, v := range s.byEndpoint {
		byEndpoint[k] = v
	}
	return Counters{
		Started:            s.started,
		Applied:            s.applied,
		Failed:             s.failed,
		Discarded:          s.discarded,
		FailuresByEndpoint: byEndpoint,
		LastAppliedAt:      s.lastApply,
		Windows:            s.windowStats(),
	}
}

func (s *Store) windowStats() []WindowStats {
	now := s.now()
	out := make([]WindowStats, 0, len(s.windows))
	for _, w := range s.windows {
		w.Evict(now.Add(-w.duration))
		out = append(out, w.Stats())
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.started, s.applied, s.failed, s.discarded = 0, 0, 0, 0
	s.byEndpoint = make(map[string]uint64)
	s.lastApply = time.Time{}
	s.resetWindows()
}
