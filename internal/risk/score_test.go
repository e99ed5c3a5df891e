package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"floodwatch/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestScoreExamples(t *testing.T) {
	cases := []struct {
		name  string
		water float64
		temp  float64
		score int
		label Label
	}{
		{"half water, floor temp", 50, 25, 35, LabelLow},
		{"saturated", 120, 40, 100, LabelHigh},
		{"cold and dry", 0, 10, 0, LabelLow},
		{"full water only", 100, 25, 70, LabelHigh},
		{"temp only", 0, 40, 30, LabelLow},
		{"mixed", 60, 32.5, 57, LabelMedium},
		{"negative water clamps", -30, 30, 10, LabelLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(model.Reading{WaterLevelCM: ptr(tc.water), TempC: ptr(tc.temp)})
			assert.Equal(t, tc.score, got.Score)
			assert.Equal(t, tc.label, got.Label)
			assert.Equal(t, tc.label.Tier(), got.Tier)
		})
	}
}

func TestScoreMatchesFormula(t *testing.T) {
	clamp := func(v float64) float64 { return math.Min(100, math.Max(0, v)) }
	for w := -10.0; w <= 130; w += 7.5 {
		for temp := 10.0; temp <= 45; temp += 2.5 {
			want := int(clamp(math.Round(clamp(w/100*100)*0.7 + clamp((temp-25)/15*100)*0.3)))
			assert.Equal(t, want, Score(w, temp), "w=%v t=%v", w, temp)
		}
	}
}

func TestMissingFieldsCountAsZero(t *testing.T) {
	assert.Equal(t, DerivedScore{Score: 0, Label: LabelLow, Tier: TierGood}, Evaluate(model.Reading{}))
	assert.Equal(t, 35, Evaluate(model.Reading{WaterLevelCM: ptr(50)}).Score)
	assert.Equal(t, 0, Evaluate(model.Reading{WaterLevelCM: ptr(math.NaN())}).Score)
}

func TestLabelBoundaries(t *testing.T) {
	assert.Equal(t, LabelHigh, LabelFor(70))
	assert.Equal(t, LabelMedium, LabelFor(69))
	assert.Equal(t, LabelMedium, LabelFor(40))
	assert.Equal(t, LabelLow, LabelFor(39))
	assert.Equal(t, LabelHigh, LabelFor(100))
	assert.Equal(t, LabelLow, LabelFor(0))
}

func TestSeverityTierSharesVocabulary(t *testing.T) {
	assert.Equal(t, TierDanger, SeverityTier("high"))
	assert.Equal(t, TierDanger, SeverityTier(" Danger "))
	assert.Equal(t, TierWarn, SeverityTier("MEDIUM"))
	assert.Equal(t, TierWarn, SeverityTier("warn"))
	assert.Equal(t, TierGood, SeverityTier("LOW"))
	assert.Equal(t, TierGood, SeverityTier(""))
	assert.Equal(t, "INFO", NormalizeSeverity(""))

	assert.Equal(t, LabelHigh.Tier(), SeverityTier("HIGH"))
	assert.Equal(t, LabelMedium.Tier(), SeverityTier("MEDIUM"))
}

func TestTierColors(t *testing.T) {
	assert.Equal(t, ColorDanger, TierDanger.Color())
	assert.Equal(t, ColorWarn, TierWarn.Color())
	assert.Equal(t, ColorGood, TierGood.Color())
	assert.Equal(t, "badge badge-danger", TierDanger.BadgeClass())
}
