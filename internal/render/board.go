package render

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/internal/model"
	"floodwatch/internal/risk"
)

// Frame is every view rendered from one applied Snapshot.
type Frame struct {
	Seq       uint64            `json:"seq"`
	AppliedAt time.Time         `json:"applied_at"`
	Snapshot  *model.Snapshot   `json:"snapshot"`
	Score     risk.DerivedScore `json:"score"`
	Cards     CardsView         `json:"cards"`
	Alerts    AlertsView        `json:"alerts"`
	Table     TableView         `json:"table"`
	Charts    ChartsView        `json:"charts"`
	Donut     DonutView         `json:"donut"`
	Map       MapView           `json:"map"`
}

// View returns one named view, or false when name is unknown.
func (f *Frame) View(name string) (any, bool) {
	switch name {
	case "cards":
		return f.Cards, true
	case "alerts":
		return f.Alerts, true
	case "table":
		return f.Table, true
	case "charts":
		return f.Charts, true
	case "donut":
		return f.Donut, true
	case "map":
		return f.Map, true
	default:
		return nil, false
	}
}

var ViewNames = []string{"cards", "alerts", "table", "charts", "donut", "map"}

// Target receives each Frame after it becomes current.
type Target interface {
	Publish(ctx context.Context, frame *Frame) error
}

type Board struct {
	renderer *Renderer
	logger   *slog.Logger
	current  atomic.Pointer[Frame]
	mu       sync.RWMutex
	targets  []Target
	now      func() time.Time
}

func NewBoard(renderer *Renderer, logger *slog.Logger) *Board {
	return &Board{renderer: renderer, logger: logger, now: time.Now}
}

func (b *Board) AddTarget(t Target) {
	if t == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, t)
}

// Render builds a Frame without publishing it.
func (b *Board) Render(seq uint64, snap *model.Snapshot) *Frame {
	score := risk.Evaluate(snap.Latest)
	return &Frame{
		Seq:       seq,
		AppliedAt: b.now().UTC(),
		Snapshot:  snap,
		Score:     score,
		Cards:     b.renderer.Cards(snap),
		Alerts:    b.renderer.Alerts(snap),
		Table:     b.renderer.Table(snap),
		Charts:    b.renderer.Charts(snap),
		Donut:     b.renderer.Donut(score),
		Map:       b.renderer.Map(snap, score),
	}
}

// Apply renders snap, makes it the current Frame in one swap and then hands
// it to every target in registration order.
func (b *Board) Apply(ctx context.Context, seq uint64, snap *model.Snapshot) *Frame {
	frame := b.Render(seq, snap)
	b.current.Store(frame)
	if skipped := len(snap.Locations) - len(frame.Map.Markers); skipped > 0 && b.logger != nil {
		b.logger.Debug("skipped locations without valid coordinates", "seq", seq, "count", skipped)
	}

	b.mu.RLock()
	targets := append([]Target(nil), b.targets...)
	b.mu.RUnlock()
	for _, t := range targets {
		if err := t.Publish(ctx, frame); err != nil && b.logger != nil {
			b.logger.Warn("frame publish failed", "seq", seq, "error", err)
		}
	}
	return frame
}

// Current returns the latest applied Frame or nil before the first one.
func (b *Board) Current() *Frame {
	return b.current.Load()
}
