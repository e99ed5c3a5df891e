package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"floodwatch/internal/model"
)

// dedupeCache remembers snapshot hashes so an unchanged backend is not
// re-published on every tick.
type dedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
	ttl   time.Duration
}

func newDedupeCache(ttl time.Duration) *dedupeCache {
	return &dedupeCache{items: make(map[string]time.Time), ttl: ttl}
}

func (d *dedupeCache) Seen(key string, now time.Time) bool {
	if d == nil || d.ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok && now.Sub(ts) <= d.ttl {
		return true
	}
	d.items[key] = now
	if len(d.items) > 1024 {
		d.compact(now)
	}
	return false
}

func (d *dedupeCache) compact(now time.Time) {
	for k, ts := range d.items {
		if now.Sub(ts) > d.ttl {
			delete(d.items, k)
		}
	}
}

func hashSnapshot(snap *model.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
