package travel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/travel-engine/travel"
)

func TestPeriodicity_Delta(t *testing.T) {
	day := 24 * time.Hour

	assert.Equal(t, 30*day, travel.PeriodicityMonthly.Delta())
	assert.Equal(t, 90*day, travel.PeriodicityQuarterly.Delta())
	assert.Equal(t, 180*day, travel.PeriodicitySemiannual.Delta())
	assert.Equal(t, 365*day, travel.PeriodicityAnnual.Delta())
}

func TestPeriodicity_UnknownFallsBackToQuarterly(t *testing.T) {
	assert.Equal(t, travel.PeriodicityQuarterly.Delta(), travel.Periodicity("weekly").Delta())
	assert.False(t, travel.Periodicity("weekly").Valid())
	assert.True(t, travel.PeriodicityMonthly.Valid())
}

func TestDaySpan_Inclusive(t *testing.T) {
	start := travel.NewDate(2025, time.March, 10)

	assert.Equal(t, 1, travel.DaySpan(start, start))
	assert.Equal(t, 3, travel.DaySpan(start, travel.NewDate(2025, time.March, 12)))
}

func TestDate_TruncatesToUTCMidnight(t *testing.T) {
	in := time.Date(2025, time.March, 10, 17, 45, 3, 0, time.UTC)
	got := travel.Date(in)

	assert.Equal(t, travel.NewDate(2025, time.March, 10), got)
	assert.True(t, travel.SameDay(in, got))
}
