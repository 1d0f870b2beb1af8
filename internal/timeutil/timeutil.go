package timeutil

import (
	"errors"
	"math"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FromUnixSeconds converts an optional provider timestamp to UTC. Fractional
// seconds are truncated.
func FromUnixSeconds(sec *float64) *time.Time {
	if sec == nil || math.IsNaN(*sec) || math.IsInf(*sec, 0) {
		return nil
	}
	t := time.Unix(int64(*sec), 0).UTC()
	return &t
}

// ParseTimestamp accepts RFC3339 or a zone-less timestamp, which is read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("timestamp is required")
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid timestamp")
}

func ParseOptionalTimestamp(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseWindow parses a positive look-back duration such as "1h" or "90m".
func ParseWindow(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("window is required")
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, errors.New("invalid window")
	}
	if d <= 0 {
		return 0, errors.New("window must be positive")
	}
	return d, nil
}
