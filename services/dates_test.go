package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKeyRespectsLocation(t *testing.T) {
	// 2025-06-07 02:30 UTC is still 2025-06-06 in New York
	ts := time.Date(2025, 6, 7, 2, 30, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "2025-06-07", DayKey(ts, time.UTC))
	assert.Equal(t, "2025-06-06", DayKey(ts, ny))
	assert.Equal(t, "2025-06-07", DayKey(ts, nil))
}

func TestAddDaysAcrossMonthAndYear(t *testing.T) {
	assert.Equal(t, "2025-07-01", AddDays("2025-06-30", 1))
	assert.Equal(t, "2026-01-01", AddDays("2025-12-31", 1))
	assert.Equal(t, "2025-02-28", AddDays("2025-03-01", -1))
	assert.Equal(t, "2024-02-29", AddDays("2024-03-01", -1))
	assert.Equal(t, "2025-06-07", PrevDay("2025-06-08"))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween("2025-06-07", "2025-06-07"))
	assert.Equal(t, 3, DaysBetween("2025-06-04", "2025-06-07"))
	assert.Equal(t, -3, DaysBetween("2025-06-07", "2025-06-04"))
	assert.Equal(t, 365, DaysBetween("2025-01-01", "2026-01-01"))
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds("2025-06-07", time.UTC)
	assert.Equal(t, time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), end)

	start, _ = DayBounds("not-a-day", time.UTC)
	assert.True(t, start.IsZero())
}

func TestValidDay(t *testing.T) {
	assert.True(t, ValidDay("2025-06-07"))
	assert.False(t, ValidDay("2025-6-7"))
	assert.False(t, ValidDay("07-06-2025"))
	assert.False(t, ValidDay(""))
}
