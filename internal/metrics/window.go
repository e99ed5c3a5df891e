package metrics

import "time"

var DefaultWindows = []time.Duration{time.Minute, 5 * time.Minute}

type windowEntry struct {
	at       time.Time
	failed   bool
	endpoint string
}

// Window counts cycle outcomes that ended within the last duration.
type Window struct {
	duration  time.Duration
	entries   []windowEntry
	head      int
	cycles    int
	failures  int
	endpoints map[string]int
}

type WindowStats struct {
	WindowSec        int            `json:"window_sec"`
	Cycles           int            `json:"cycles"`
	Failures         int            `json:"failures"`
	FailureRate      float64        `json:"failure_rate"`
	CyclesPerMinute  float64        `json:"cycles_per_minute"`
	IntervalVariance float64        `json:"interval_variance"`
	FailedEndpoints  map[string]int `json:"failed_endpoints,omitempty"`
}

func NewWindow(duration time.Duration) *Window {
	return &Window{
		duration:  duration,
		entries:   make([]windowEntry, 0, 64),
		endpoints: make(map[string]int),
	}
}

func (w *Window) Add(at time.Time, failed bool, endpoint string) {
	w.entries = append(w.entries, windowEntry{at: at, failed: failed, endpoint: endpoint})
	w.cycles++
	if failed {
		w.failures++
		if endpoint != "" {
			w.endpoints[endpoint]++
		}
	}
}

func (w *Window) Evict(cutoff time.Time) {
	for w.head < len(w.entries) {
		e := w.entries[w.head]
		if !e.at.Before(cutoff) {
			break
		}
		w.cycles--
		if e.failed {
			w.failures--
			if e.endpoint != "" {
				if count := w.endpoints[e.endpoint]; count <= 1 {
					delete(w.endpoints, e.endpoint)
				} else {
					w.endpoints[e.endpoint] = count - 1
				}
			}
		}
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.entries) {
		w.entries = append([]windowEntry{}, w.entries[w.head:]...)
		w.head = 0
	}
}

func (w *Window) Stats() WindowStats {
	stats := WindowStats{
		WindowSec: int(w.duration.Seconds()),
		Cycles:    w.cycles,
		Failures:  w.failures,
	}
	if w.cycles > 0 {
		stats.FailureRate = float64(w.failures) / float64(w.cycles)
		stats.CyclesPerMinute = float64(w.cycles) / w.duration.Minutes()
	}
	stats.IntervalVariance = intervalVariance(w.entries, w.head)
	if len(w.endpoints) > 0 {
		stats.FailedEndpoints = make(map[string]int, len(w.endpoints))
		for k, v := range w.endpoints {
			stats.FailedEndpoints[k] = v
		}
	}
	return stats
}

// intervalVariance is the variance in seconds of the gaps between cycle
// completions. A steady ticker keeps it near zero.
func intervalVariance(entries []windowEntry, start int) float64 {
	if len(entries)-start <= 1 {
		return 0
	}
	var n int
	var mean, m2 float64
	prev := entries[start].at
	for i := start + 1; i < len(entries); i++ {
		delta := entries[i].at.Sub(prev).Seconds()
		if delta < 0 {
			delta = 0
		}
		n++
		diff := delta - mean
		mean += diff / float64(n)
		m2 += diff * (delta - mean)
		prev = entries[i].at
	}
	return m2 / float64(n)
}
