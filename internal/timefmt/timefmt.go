// Package timefmt turns the remote service's opaque timestamps into display
// strings in the console's timezone.
package timefmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateTimeLayout = "2006-01-02 15:04:05"
	ClockLayout    = "15:04"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

type Formatter struct {
	loc         *time.Location
	placeholder string
}

func New(loc *time.Location, placeholder string) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{loc: loc, placeholder: placeholder}
}

func (f *Formatter) Location() *time.Location {
	return f.loc
}

// DateTime renders value as a local date and time. Empty values give the
// placeholder and unparsable values are returned unchanged.
func (f *Formatter) DateTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return f.placeholder
	}
	t, err := Parse(value, f.loc)
	if err != nil {
		return value
	}
	return t.In(f.loc).Format(DateTimeLayout)
}

// Clock renders value as local hour:minute for chart axes.
func (f *Formatter) Clock(value string) string {
	t, err := Parse(value, f.loc)
	if err != nil {
		return value
	}
	return t.In(f.loc).Format(ClockLayout)
}

// Parse accepts RFC3339 variants, zone-less ISO times (read in loc) and unix
// seconds or milliseconds.
func Parse(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
