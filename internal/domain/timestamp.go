package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// CanonicalLayout is the ISO-8601 UTC shape every normalized timestamp takes.
const CanonicalLayout = "2006-01-02T15:04:05Z"

// radarLayout is the compact form the radar map service expects.
const radarLayout = "200601021504"

// knownLayouts are tried in order before falling back to free-form parsing.
// Layouts without a zone parse as UTC.
var knownLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// meridiemLayouts cover month-name dates with a 12-hour clock. Input is
// upper-cased before matching them.
var meridiemLayouts = func() []string {
	var layouts []string
	for _, date := range []string{"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006"} {
		for _, clock := range []string{"3PM", "3 PM", "3:04PM", "3:04 PM", "3:04:05 PM"} {
			layouts = append(layouts, date+" "+clock)
		}
	}
	return layouts
}()

// bareHourMeridiem matches an hour with am/pm and no minutes ("7pm"), which
// the free-form parser reads as the wrong hour.
var bareHourMeridiem = regexp.MustCompile(`(?i)(^|[^:\d])\d{1,2}\s*[ap]\.?m\b`)

// ParseTimestamp converts a timestamp string to a UTC instant. It accepts
// ISO-8601 with a zone, ISO-8601 without one (taken as UTC), a bare date
// (midnight UTC), month-name dates with a 12-hour clock, and any other shape
// dateparse understands unambiguously. Month/day order that could go either
// way is rejected.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	for _, layout := range knownLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	upper := strings.ToUpper(s)
	for _, layout := range meridiemLayouts {
		if t, err := time.ParseInLocation(layout, upper, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if bareHourMeridiem.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: ambiguous clock time in %q", ErrInvalidTimestamp, s)
	}

	// Zoneless input parses as UTC.
	t, err := dateparse.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t.UTC(), nil
}

// NormalizeTimestamp returns s as a canonical ISO-8601 UTC string.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(CanonicalLayout)
}

// RadarTimestamp renders t as YYYYMMDDHHMM in UTC.
func RadarTimestamp(t time.Time) string {
	return t.UTC().Format(radarLayout)
}
