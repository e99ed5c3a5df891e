// Package render projects a Snapshot into the console's view models.
package render

import (
	"math"
	"strconv"
	"strings"
)

// Policy decides how absent values are displayed. Cards, the table and the
// alert list show Placeholder; charts and the score treat absence as zero.
type Policy struct {
	Placeholder string
}

func DefaultPolicy() Policy {
	return Policy{Placeholder: "—"}
}

// Number formats an optional value for text views.
func (p Policy) Number(v *float64) string {
	if v == nil {
		return p.Placeholder
	}
	return FormatNumber(*v)
}

// Int formats an optional integer for text views.
func (p Policy) Int(v *int) string {
	if v == nil {
		return p.Placeholder
	}
	return strconv.Itoa(*v)
}

// String returns s or the placeholder when s is nil or blank.
func (p Policy) String(s *string) string {
	if s == nil {
		return p.Placeholder
	}
	return p.Text(*s)
}

func (p Policy) Text(s string) string {
	if strings.TrimSpace(s) == "" {
		return p.Placeholder
	}
	return s
}

// ChartValue is the plotted value for an optional reading field.
func ChartValue(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

// FormatNumber prints the shortest decimal that round-trips.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
