package logging

import (
	"sync"
	"time"
)

// Throttle lets a repeated message through at most once per interval per key.
type Throttle struct {
	mu    sync.Mutex
	last  map[string]time.Time
	every time.Duration
	now   func() time.Time
}

func NewThrottle(every time.Duration) *Throttle {
	return &Throttle{last: make(map[string]time.Time), every: every, now: time.Now}
}

func (t *Throttle) Allow(key string) bool {
	if t == nil || t.every <= 0 {
		return true
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok := t.last[key]; ok && now.Sub(ts) < t.every {
		return false
	}
	t.last[key] = now
	return true
}

// Reset forgets key so its next message is logged.
func (t *Throttle) Reset(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key)
}

// Clear forgets every key.
func (t *Throttle) Clear() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.last)
}
