package model

import (
	"bytes"
	"encoding/json"
	"math"
)

// Timestamp is the server's opaque time value. Strings are kept verbatim and
// numeric values keep their JSON text.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return err
	}
	*t = Timestamp(s)
	return nil
}

func (t Timestamp) String() string { return string(t) }

func (t Timestamp) IsZero() bool { return t == "" }

// ID is a server identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

// scalarText returns a JSON string's value or a number's literal text.
// null decodes to "".
func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Reading is one sensor observation. Nil pointers mean the field was absent.
type Reading struct {
	Timestamp    Timestamp `json:"timestamp"`
	LocationID   *string   `json:"location_id,omitempty"`
	WaterLevelCM *float64  `json:"water_level_cm,omitempty"`
	TempC        *float64  `json:"temp_c,omitempty"`
	RainfallMM   *float64  `json:"rainfall_mm,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	Salinity     *float64  `json:"salinity,omitempty"`
	DeviceID     *string   `json:"device_id,omitempty"`
}

// RiskAssessment is the server-computed risk for a location.
type RiskAssessment struct {
	Timestamp  Timestamp `json:"timestamp"`
	LocationID string    `json:"location_id,omitempty"`
	Level      string    `json:"level"`
	Reasons    []string  `json:"reasons"`
	FloodRisk  *int      `json:"flood_risk,omitempty"`
	HeatRisk   *int      `json:"heat_risk,omitempty"`
}

// UnmarshalJSON accepts the live backend's risk_level when level is absent.
func (r *RiskAssessment) UnmarshalJSON(data []byte) error {
	type Alias RiskAssessment
	aux := &struct {
		RiskLevel string `json:"risk_level"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.Level == "" {
		r.Level = aux.RiskLevel
	}
	return nil
}

type Alert struct {
	ID         ID        `json:"id,omitempty"`
	Timestamp  Timestamp `json:"timestamp"`
	Severity   string    `json:"severity"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	LocationID string    `json:"location_id"`
	Status     string    `json:"status,omitempty"`
}

type Location struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Region string  `json:"region"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// Valid reports whether the coordinates can be placed on a map.
func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lon) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// Snapshot is everything one successful refresh cycle fetched. It is built
// once by the aggregator and must not be mutated afterwards.
type Snapshot struct {
	BaseURL       string         `json:"base_url"`
	LocationID    string         `json:"location_id"`
	Latest        Reading        `json:"latest"`
	Risk          RiskAssessment `json:"risk"`
	Alerts        []Alert        `json:"alerts"`
	History       []Reading      `json:"history"`
	Chronological []Reading      `json:"chronological"`
	Locations     []Location     `json:"locations"`
}
