// Package aggregator gathers the five remote resources into one Snapshot.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"floodwatch/internal/client"
	"floodwatch/internal/model"
)

const DefaultHistoryLimit = 40

// Source is the subset of the remote API a refresh cycle needs.
type Source interface {
	LatestReading(ctx context.Context, locationID string) (model.Reading, error)
	LatestRisk(ctx context.Context, locationID string) (model.RiskAssessment, error)
	OpenAlerts(ctx context.Context) ([]model.Alert, error)
	History(ctx context.Context, locationID string, limit int) ([]model.Reading, error)
	Locations(ctx context.Context) ([]model.Location, error)
}

// SourceFactory builds a Source bound to a base address.
type SourceFactory func(baseURL string) Source

// CycleError reports the first endpoint that failed during a refresh.
type CycleError struct {
	Endpoint string
	Err      error
}

func (e *CycleError) Error() string {
	return e.Err.Error()
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

type Aggregator struct {
	newSource    SourceFactory
	historyLimit int
	logger       *slog.Logger
}

// New returns an Aggregator backed by the HTTP client.
func New(timeout time.Duration, historyLimit int, logger *slog.Logger) *Aggregator {
	factory := func(baseURL string) Source {
		return client.New(baseURL, timeout, logger)
	}
	return NewWithFactory(factory, historyLimit, logger)
}

func NewWithFactory(factory SourceFactory, historyLimit int, logger *slog.Logger) *Aggregator {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Aggregator{newSource: factory, historyLimit: historyLimit, logger: logger}
}

// Refresh issues all five requests concurrently. Either every request
// succeeds and a complete Snapshot is returned, or the first failure is.
func (a *Aggregator) Refresh(ctx context.Context, baseURL, locationID string) (*model.Snapshot, error) {
	src := a.newSource(baseURL)
	g, gctx := errgroup.WithContext(ctx)

	var (
		latest    model.Reading
		risk      model.RiskAssessment
		alerts    []model.Alert
		history   []model.Reading
		locations []model.Location
	)

	g.Go(func() (err error) {
		latest, err = src.LatestReading(gctx, locationID)
		return wrap(client.PathLatestReading, err)
	})
	g.Go(func() (err error) {
		risk, err = src.LatestRisk(gctx, locationID)
		return wrap(client.PathLatestRisk, err)
	})
	g.Go(func() (err error) {
		alerts, err = src.OpenAlerts(gctx)
		return wrap(client.PathAlerts, err)
	})
	g.Go(func() (err error) {
		history, err = src.History(gctx, locationID, a.historyLimit)
		return wrap(client.PathHistory, err)
	})
	g.Go(func() (err error) {
		locations, err = src.Locations(gctx)
		return wrap(client.PathLocations, err)
	})

	if err := g.Wait(); err != nil {
		if a.logger != nil {
			var ce *CycleError
			endpoint := ""
			if errors.As(err, &ce) {
				endpoint = ce.Endpoint
			}
			a.logger.Warn("refresh failed", "base_url", baseURL, "location_id", locationID, "endpoint", endpoint, "error", err)
		}
		return nil, err
	}

	if alerts == nil {
		alerts = []model.Alert{}
	}
	if history == nil {
		history = []model.Reading{}
	}
	if locations == nil {
		locations = []model.Location{}
	}

	return &model.Snapshot{
		BaseURL:       baseURL,
		LocationID:    locationID,
		Latest:        latest,
		Risk:          risk,
		Alerts:        alerts,
		History:       history,
		Chronological: reversed(history),
		Locations:     locations,
	}, nil
}

func wrap(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return &CycleError{Endpoint: endpoint, Err: err}
}

func reversed(in []model.Reading) []model.Reading {
	out := make([]model.Reading, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}
