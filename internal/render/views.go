package render

import (
	"fmt"
	"strconv"
	"strings"

	"floodwatch/internal/model"
	"floodwatch/internal/risk"
	"floodwatch/internal/timefmt"
)

const (
	MapCenterLat = 1.3521
	MapCenterLon = 103.8198
	MapZoom      = 11

	DonutRemainderColor = "rgba(234,240,255,.12)"
	NoAlertsMessage     = "No alerts."
)

var TableHeaders = []string{"Time", "Water (cm)", "Temp (°C)", "Rain (mm)", "Humidity", "Salinity", "Device"}

type CardsView struct {
	ReadingTime string `json:"reading_time"`
	WaterText   string `json:"water_text"`
	ReadingSub  string `json:"reading_sub"`
	WaterLevel  string `json:"water_level_cm"`
	Temp        string `json:"temp_c"`
	Salinity    string `json:"salinity"`
	Humidity    string `json:"humidity"`
	Rainfall    string `json:"rainfall_mm"`
	RiskTime    string `json:"risk_time"`
	RiskLevel   string `json:"risk_level"`
	RiskReasons string `json:"risk_reasons"`
	FloodRisk   string `json:"flood_risk"`
	HeatRisk    string `json:"heat_risk"`
}

type AlertItem struct {
	Severity   string    `json:"severity"`
	Tier       risk.Tier `json:"tier"`
	BadgeClass string    `json:"badge_class"`
	Type       string    `json:"type"`
	Time       string    `json:"time"`
	Message    string    `json:"message"`
	LocationID string    `json:"location_id"`
}

type AlertsView struct {
	Meta  string      `json:"meta"`
	Empty string      `json:"empty,omitempty"`
	Items []AlertItem `json:"items"`
}

type TableRow struct {
	Time     string `json:"time"`
	Water    string `json:"water_level_cm"`
	Temp     string `json:"temp_c"`
	Rainfall string `json:"rainfall_mm"`
	Humidity string `json:"humidity"`
	Salinity string `json:"salinity"`
	Device   string `json:"device_id"`
}

type TableView struct {
	Headers []string   `json:"headers"`
	Rows    []TableRow `json:"rows"`
}

type Series struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type ChartsView struct {
	Labels []string `json:"labels"`
	Water  Series   `json:"water"`
	Temp   Series   `json:"temp"`
}

type DonutView struct {
	Labels     [2]string  `json:"labels"`
	Data       [2]int     `json:"data"`
	Colors     [2]string  `json:"colors"`
	CenterText string     `json:"center_text"`
	Label      risk.Label `json:"label"`
	Tier       risk.Tier  `json:"tier"`
}

type Marker struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Region   string  `json:"region"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Color    string  `json:"color"`
	Selected bool    `json:"selected"`
	Popup    string  `json:"popup"`
}

type MapView struct {
	CenterLat float64  `json:"center_lat"`
	CenterLon float64  `json:"center_lon"`
	Zoom      int      `json:"zoom"`
	Markers   []Marker `json:"markers"`
}

// Renderer builds every view from a Snapshot. It holds no state between calls.
type Renderer struct {
	policy Policy
	times  *timefmt.Formatter
}

func NewRenderer(policy Policy, times *timefmt.Formatter) *Renderer {
	if times == nil {
		times = timefmt.New(nil, policy.Placeholder)
	}
	return &Renderer{policy: policy, times: times}
}

func (r *Renderer) Cards(snap *model.Snapshot) CardsView {
	p := r.policy
	latest := snap.Latest
	assessment := snap.Risk

	level := strings.ToUpper(p.Text(assessment.Level))
	reasons := p.Placeholder
	if joined := strings.Join(assessment.Reasons, ", "); joined != "" {
		reasons = joined
	}

	v := CardsView{
		ReadingTime: r.times.DateTime(latest.Timestamp.String()),
		WaterLevel:  p.Number(latest.WaterLevelCM),
		Temp:        p.Number(latest.TempC),
		Salinity:    p.Number(latest.Salinity),
		Humidity:    p.Number(latest.Humidity),
		Rainfall:    p.Number(latest.RainfallMM),
		RiskTime:    r.times.DateTime(assessment.Timestamp.String()),
		RiskLevel:   level,
		RiskReasons: "Reasons: " + reasons,
		FloodRisk:   p.Int(assessment.FloodRisk),
		HeatRisk:    p.Int(assessment.HeatRisk),
	}
	v.WaterText = fmt.Sprintf("Water: %s cm", v.WaterLevel)
	v.ReadingSub = fmt.Sprintf("Temp: %s °C | Salinity: %s | Humidity: %s%% | Rain: %s mm",
		v.Temp, v.Salinity, v.Humidity, v.Rainfall)
	return v
}

func (r *Renderer) Alerts(snap *model.Snapshot) AlertsView {
	if len(snap.Alerts) == 0 {
		return AlertsView{Meta: "0 alert(s)", Empty: NoAlertsMessage, Items: []AlertItem{}}
	}
	items := make([]AlertItem, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		sev := risk.NormalizeSeverity(a.Severity)
		tier := risk.SeverityTier(sev)
		typ := strings.ToUpper(strings.TrimSpace(a.Type))
		if typ == "" {
			typ = "ALERT"
		}
		items = append(items, AlertItem{
			Severity:   sev,
			Tier:       tier,
			BadgeClass: tier.BadgeClass(),
			Type:       typ,
			Time:       r.times.DateTime(a.Timestamp.String()),
			Message:    r.policy.Text(a.Message),
			LocationID: r.policy.Text(a.LocationID),
		})
	}
	return AlertsView{Meta: fmt.Sprintf("%d alert(s)", len(items)), Items: items}
}

func (r *Renderer) Table(snap *model.Snapshot) TableView {
	p := r.policy
	rows := make([]TableRow, 0, len(snap.History))
	for _, h := range snap.History {
		rows = append(rows, TableRow{
			Time:     r.times.DateTime(h.Timestamp.String()),
			Water:    p.Number(h.WaterLevelCM),
			Temp:     p.Number(h.TempC),
			Rainfall: p.Number(h.RainfallMM),
			Humidity: p.Number(h.Humidity),
			Salinity: p.Number(h.Salinity),
			Device:   p.String(h.DeviceID),
		})
	}
	return TableView{Headers: TableHeaders, Rows: rows}
}

func (r *Renderer) Charts(snap *model.Snapshot) ChartsView {
	n := len(snap.Chronological)
	v := ChartsView{
		Labels: make([]string, 0, n),
		Water:  Series{Label: "Water level (cm)", Data: make([]float64, 0, n)},
		Temp:   Series{Label: "Temperature (°C)", Data: make([]float64, 0, n)},
	}
	for _, h := range snap.Chronological {
		v.Labels = append(v.Labels, r.times.Clock(h.Timestamp.String()))
		v.Water.Data = append(v.Water.Data, ChartValue(h.WaterLevelCM))
		v.Temp.Data = append(v.Temp.Data, ChartValue(h.TempC))
	}
	return v
}

func (r *Renderer) Donut(score risk.DerivedScore) DonutView {
	return DonutView{
		Labels:     [2]string{"Risk", "Remaining"},
		Data:       [2]int{score.Score, 100 - score.Score},
		Colors:     [2]string{score.Tier.Color(), DonutRemainderColor},
		CenterText: strconv.Itoa(score.Score),
		Label:      score.Label,
		Tier:       score.Tier,
	}
}

// Map rebuilds the full marker set. Locations without usable coordinates are
// skipped.
func (r *Renderer) Map(snap *model.Snapshot, score risk.DerivedScore) MapView {
	markers := make([]Marker, 0, len(snap.Locations))
	for _, loc := range snap.Locations {
		if !loc.Valid() {
			continue
		}
		selected := loc.ID == snap.LocationID
		m := Marker{
			ID:       loc.ID,
			Name:     loc.Name,
			Region:   loc.Region,
			Lat:      loc.Lat,
			Lon:      loc.Lon,
			Color:    risk.ColorNeutral,
			Selected: selected,
			Popup:    fmt.Sprintf("%s (%s)\nregion: %s", loc.Name, loc.ID, loc.Region),
		}
		if selected {
			m.Color = score.Tier.Color()
			m.Popup += fmt.Sprintf("\nCurrent score: %d/100", score.Score)
		}
		markers = append(markers, m)
	}
	return MapView{CenterLat: MapCenterLat, CenterLon: MapCenterLon, Zoom: MapZoom, Markers: markers}
}
