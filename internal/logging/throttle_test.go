package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle(t *testing.T) {
	now := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("/api/alerts"))
	assert.False(t, th.Allow("/api/alerts"))
	assert.True(t, th.Allow("/api/locations"))

	now = now.Add(31 * time.Second)
	assert.True(t, th.Allow("/api/alerts"))

	th.Reset("/api/alerts")
	assert.True(t, th.Allow("/api/alerts"))
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0)
	assert.True(t, th.Allow("k"))
	assert.True(t, th.Allow("k"))

	var nilThrottle *Throttle
	assert.True(t, nilThrottle.Allow("k"))
}

func TestThrottleClear(t *testing.T) {
	th := NewThrottle(time.Hour)
	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))
	th.Clear()
	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))
}
