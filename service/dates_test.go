package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPayPeriodStart(t *testing.T) {
	p := PayPeriod{Anchor: day(2024, time.January, 1), Days: 14}

	tests := []struct {
		now      time.Time
		expected time.Time
	}{
		{day(2024, time.January, 1), day(2024, time.January, 1)},
		{time.Date(2024, time.January, 14, 23, 0, 0, 0, time.UTC), day(2024, time.January, 1)},
		{day(2024, time.January, 15), day(2024, time.January, 15)},
		{day(2023, time.December, 31), day(2023, time.December, 18)},
	}

	for _, tt := range tests {
		got, err := p.Start(tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "now=%v", tt.now)
	}

	_, err := PayPeriod{Days: 0}.Start(day(2024, 1, 1))
	assert.Error(t, err)
}

func TestExportWindow(t *testing.T) {
	p := PayPeriod{Anchor: day(2024, time.January, 1), Days: 14}
	now := time.Date(2024, time.May, 20, 9, 30, 0, 0, time.UTC)

	start, end, err := ExportWindow(now, time.Time{}, time.Time{}, p, 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.February, 20), start)
	assert.Equal(t, day(2024, time.May, 21), end)

	start, end, err = ExportWindow(now, day(2023, time.January, 1), day(2030, time.January, 1), p, 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.February, 20), start, "amendments before the lookback are never surfaced")
	assert.Equal(t, day(2024, time.May, 21), end)

	start, end, err = ExportWindow(now, day(2024, time.May, 1), day(2024, time.May, 10), p, 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.May, 1), start)
	assert.Equal(t, day(2024, time.May, 10), end)

	_, _, err = ExportWindow(now, day(2024, time.May, 10), day(2024, time.May, 1), p, 3)
	assert.Error(t, err)
}
