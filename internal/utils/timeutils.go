package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimestamp accepts RFC3339 strings and unix epoch seconds (optionally fractional),
// the two shapes monitoring webhooks send.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: not RFC3339 or epoch seconds", value)
	}
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC(), nil
}

// HoursBetween returns the absolute number of hours separating two timestamps.
func HoursBetween(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Hours()
}
