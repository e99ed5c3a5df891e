// Package risk computes the console's own 0-100 risk score from a reading and
// maps both scores and alert severities onto one presentation tier.
package risk

import (
	"math"
	"strings"

	"floodwatch/internal/model"
)

type Label string

const (
	LabelLow    Label = "LOW"
	LabelMedium Label = "MEDIUM"
	LabelHigh   Label = "HIGH"
)

type Tier string

const (
	TierGood   Tier = "good"
	TierWarn   Tier = "warn"
	TierDanger Tier = "danger"
)

const (
	ColorGood    = "#4ade80"
	ColorWarn    = "#fbbf24"
	ColorDanger  = "#fb7185"
	ColorNeutral = "rgba(102,227,255,.75)"
)

const (
	waterWeight = 0.7
	tempWeight  = 0.3

	waterSaturationCM = 100.0
	tempFloorC        = 25.0
	tempSpanC         = 15.0

	highThreshold   = 70
	mediumThreshold = 40
)

// DerivedScore is the client-side score for the latest reading.
type DerivedScore struct {
	Score int   `json:"score"`
	Label Label `json:"label"`
	Tier  Tier  `json:"tier"`
}

// Evaluate scores a reading. Missing fields count as zero.
func Evaluate(r model.Reading) DerivedScore {
	score := Score(valueOrZero(r.WaterLevelCM), valueOrZero(r.TempC))
	label := LabelFor(score)
	return DerivedScore{Score: score, Label: label, Tier: label.Tier()}
}

// Score applies the weighted water/temperature formula and clamps to [0,100].
func Score(waterCM, tempC float64) int {
	waterScore := clamp(waterCM/waterSaturationCM*100, 0, 100)
	tempScore := clamp((tempC-tempFloorC)/tempSpanC*100, 0, 100)
	score := math.Round(waterScore*waterWeight + tempScore*tempWeight)
	return int(clamp(score, 0, 100))
}

func LabelFor(score int) Label {
	switch {
	case score >= highThreshold:
		return LabelHigh
	case score >= mediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

func (l Label) Tier() Tier {
	switch l {
	case LabelHigh:
		return TierDanger
	case LabelMedium:
		return TierWarn
	default:
		return TierGood
	}
}

// NormalizeSeverity upper-cases a severity, defaulting to INFO.
func NormalizeSeverity(severity string) string {
	s := strings.ToUpper(strings.TrimSpace(severity))
	if s == "" {
		return "INFO"
	}
	return s
}

// SeverityTier maps an alert severity onto the tier used for scores.
func SeverityTier(severity string) Tier {
	switch NormalizeSeverity(severity) {
	case "HIGH", "DANGER":
		return TierDanger
	case "MEDIUM", "WARN":
		return TierWarn
	default:
		return TierGood
	}
}

func (t Tier) Color() string {
	switch t {
	case TierDanger:
		return ColorDanger
	case TierWarn:
		return ColorWarn
	default:
		return ColorGood
	}
}

// BadgeClass is the CSS class pair used for alert badges and score labels.
func (t Tier) BadgeClass() string {
	return "badge badge-" + string(t)
}

func valueOrZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
