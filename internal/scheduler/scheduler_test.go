package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/aggregator"
	"floodwatch/internal/config"
	"floodwatch/internal/metrics"
	"floodwatch/internal/model"
	"floodwatch/internal/render"
	"floodwatch/internal/timefmt"
)

type result struct {
	snap *model.Snapshot
	err  error
}

// gatedRefresher blocks each call until the test releases it.
type gatedRefresher struct {
	mu      sync.Mutex
	n       int
	gates   []chan result
	started chan int
	targets []string
}

func newGated(calls int) *gatedRefresher {
	g := &gatedRefresher{started: make(chan int, calls)}
	for i := 0; i < calls; i++ {
		g.gates = append(g.gates, make(chan result, 1))
	}
	return g
}

func (g *gatedRefresher) Refresh(ctx context.Context, baseURL, locationID string) (*model.Snapshot, error) {
	g.mu.Lock()
	idx := g.n
	g.n++
	g.targets = append(g.targets, baseURL+"|"+locationID)
	gate := g.gates[idx]
	g.mu.Unlock()

	g.started <- idx
	r := <-gate
	return r.snap, r.err
}

type immediateRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *immediateRefresher) Refresh(ctx context.Context, baseURL, locationID string) (*model.Snapshot, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return snapshot(locationID), nil
}

func snapshot(id string) *model.Snapshot {
	water := 10.0
	return &model.Snapshot{LocationID: id, Latest: model.Reading{Timestamp: model.Timestamp(id), WaterLevelCM: &water}}
}

func newBoard() *render.Board {
	return render.NewBoard(render.NewRenderer(render.DefaultPolicy(), timefmt.New(time.UTC, "—")), nil)
}

func newScheduler(r Refresher, board *render.Board, policy string) (*Scheduler, *metrics.Store) {
	store := metrics.NewStore(10)
	s := New(r, board, store, nil, Options{
		BaseURL:     "http://backend/",
		LocationID:  "loc_1",
		Interval:    10 * time.Millisecond,
		StalePolicy: policy,
	})
	return s, store
}

func TestStatusTransitions(t *testing.T) {
	g := newGated(2)
	board := newBoard()
	s, store := newScheduler(g, board, config.StalePolicyDiscard)

	done := make(chan Status, 1)
	go func() { done <- s.OnManualRefresh(context.Background()) }()
	<-g.started
	assert.Equal(t, StateConnecting, s.Status().State)
	assert.Equal(t, MessageFetching, s.Status().Message)
	assert.Equal(t, "Connecting…", s.Status().Pill)

	g.gates[0] <- result{snap: snapshot("loc_1")}
	st := <-done
	assert.Equal(t, StateLive, st.State)
	assert.Equal(t, "Live ✓", st.Pill)
	assert.Equal(t, MessageLive, st.Message)
	applied := board.Current()
	require.NotNil(t, applied)
	assert.Equal(t, uint64(1), applied.Seq)

	go func() { done <- s.OnManualRefresh(context.Background()) }()
	<-g.started
	g.gates[1] <- result{err: &aggregator.CycleError{Endpoint: "/api/alerts", Err: errors.New("503 Service Unavailable ")}}
	st = <-done
	assert.Equal(t, StateOffline, st.State)
	assert.Equal(t, "Offline", st.Pill)
	assert.Equal(t, "Failed: 503 Service Unavailable ", st.Message)

	assert.Same(t, applied, board.Current(), "failed cycle must leave the frame untouched")
	assert.Equal(t, uint64(1), s.Status().AppliedSeq)

	c := store.Counters()
	assert.Equal(t, uint64(2), c.Started)
	assert.Equal(t, uint64(1), c.Applied)
	assert.Equal(t, uint64(1), c.FailuresByEndpoint["/api/alerts"])
}

// runRace starts cycle A, then cycle B, completes B and finally A.
func runRace(t *testing.T, policy string) (*Scheduler, *render.Board, *metrics.Store) {
	t.Helper()
	g := newGated(2)
	board := newBoard()
	s, store := newScheduler(g, board, policy)
	ctx := context.Background()

	doneA := make(chan Status, 1)
	doneB := make(chan Status, 1)
	go func() { doneA <- s.OnManualRefresh(ctx) }()
	require.Equal(t, 0, <-g.started)
	go func() { doneB <- s.OnManualRefresh(ctx) }()
	require.Equal(t, 1, <-g.started)

	g.gates[1] <- result{snap: snapshot("B")}
	<-doneB
	g.gates[0] <- result{snap: snapshot("A")}
	<-doneA
	return s, board, store
}

func TestOutOfOrderLastCompletedWins(t *testing.T) {
	s, board, _ := runRace(t, config.StalePolicyLastCompleted)
	assert.Equal(t, "A", s.Snapshot().LocationID)
	assert.Equal(t, "A", board.Current().Snapshot.LocationID)
	assert.Equal(t, uint64(1), board.Current().Seq)
}

func TestOutOfOrderNewestStartedWins(t *testing.T) {
	s, board, store := runRace(t, config.StalePolicyDiscard)
	assert.Equal(t, "B", s.Snapshot().LocationID)
	assert.Equal(t, "B", board.Current().Snapshot.LocationID)
	assert.Equal(t, uint64(2), board.Current().Seq)
	assert.Equal(t, StateLive, s.Status().State)
	assert.Equal(t, uint64(1), store.Counters().Discarded)
}

func TestStaleFailureKeepsLiveStatus(t *testing.T) {
	g := newGated(2)
	s, _ := newScheduler(g, newBoard(), config.StalePolicyDiscard)
	ctx := context.Background()

	doneA := make(chan Status, 1)
	doneB := make(chan Status, 1)
	go func() { doneA <- s.OnManualRefresh(ctx) }()
	<-g.started
	go func() { doneB <- s.OnManualRefresh(ctx) }()
	<-g.started

	g.gates[1] <- result{snap: snapshot("B")}
	<-doneB
	g.gates[0] <- result{err: errors.New("timeout")}
	st := <-doneA
	assert.Equal(t, StateLive, st.State)
}

func TestUpdateTarget(t *testing.T) {
	g := newGated(1)
	s, _ := newScheduler(g, newBoard(), config.StalePolicyDiscard)
	s.UpdateTarget("http://other:9000/", "loc_7")

	base, loc := s.Target()
	assert.Equal(t, "http://other:9000", base)
	assert.Equal(t, "loc_7", loc)

	g.gates[0] <- result{snap: snapshot("loc_7")}
	s.OnManualRefresh(context.Background())
	assert.Equal(t, []string{"http://other:9000|loc_7"}, g.targets)
}

func TestRunLoadsImmediatelyAndTicks(t *testing.T) {
	r := &immediateRefresher{}
	board := newBoard()
	s, _ := newScheduler(r, board, config.StalePolicyDiscard)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	require.NotNil(t, board.Current())
	assert.Equal(t, StateLive, s.Status().State)
}

func TestUpdateConfig(t *testing.T) {
	s, _ := newScheduler(&immediateRefresher{}, newBoard(), config.StalePolicyDiscard)
	cfg := config.DefaultConfig()
	cfg.Remote.LocationID = "loc_4"
	cfg.Refresh.Interval = time.Minute
	cfg.Refresh.StalePolicy = config.StalePolicyLastCompleted
	s.UpdateConfig(cfg)

	_, loc := s.Target()
	assert.Equal(t, "loc_4", loc)
	assert.Equal(t, time.Minute, s.Interval())
	assert.Equal(t, config.StalePolicyLastCompleted, s.stalePolicy())
}
