// Package client fetches the monitoring resources from the remote service.
package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"floodwatch/internal/model"
)

const (
	PathLatestReading = "/api/readings/latest"
	PathLatestRisk    = "/api/risk/latest"
	PathAlerts        = "/api/alerts"
	PathHistory       = "/api/readings/history"
	PathLocations     = "/api/locations"

	maxErrorBody = 4 << 10
)

// Client issues one GET per call against a base address. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for baseURL. A zero timeout leaves requests unbounded.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithHTTPClient swaps the underlying http.Client (useful for testing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch GETs endpoint with params and decodes the JSON body into out.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{
			Kind:       KindHTTPStatus,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(resp),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Kind: KindParse, Endpoint: endpoint, Err: err}
	}

	if c.logger != nil {
		c.logger.Debug("fetched resource", "endpoint", endpoint, "status", resp.StatusCode)
	}
	return nil
}

// reasonPhrase is the server's own status text, e.g. "Service Unavailable"
// from "503 Service Unavailable".
func reasonPhrase(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

func (c *Client) LatestReading(ctx context.Context, locationID string) (model.Reading, error) {
	var r model.Reading
	err := c.Fetch(ctx, PathLatestReading, url.Values{"location_id": {locationID}}, &r)
	return r, err
}

func (c *Client) LatestRisk(ctx context.Context, locationID string) (model.RiskAssessment, error) {
	var r model.RiskAssessment
	err := c.Fetch(ctx, PathLatestRisk, url.Values{"location_id": {locationID}}, &r)
	return r, err
}

func (c *Client) OpenAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	err := c.Fetch(ctx, PathAlerts, url.Values{"status": {"open"}}, &alerts)
	return alerts, err
}

// History returns up to limit readings, newest first as the server sends them.
func (c *Client) History(ctx context.Context, locationID string, limit int) ([]model.Reading, error) {
	var readings []model.Reading
	params := url.Values{
		"location_id": {locationID},
		"limit":       {strconv.Itoa(limit)},
	}
	err := c.Fetch(ctx, PathHistory, params, &readings)
	return readings, err
}

func (c *Client) Locations(ctx context.Context) ([]model.Location, error) {
	var locations []model.Location
	err := c.Fetch(ctx, PathLocations, nil, &locations)
	return locations, err
}
