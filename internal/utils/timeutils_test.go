package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = ParseTimestamp("1700000000.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), got.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Nanosecond()))

	_, err = ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestHoursBetween(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.InDelta(t, 2.5, HoursBetween(start, start.Add(150*time.Minute)), 1e-9)
	assert.InDelta(t, 2.5, HoursBetween(start.Add(150*time.Minute), start), 1e-9)
}
