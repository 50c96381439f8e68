package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNormalizeSeries(t *testing.T) {
	raw := []Point{
		{Date: day("2024-01-03"), Close: 103},
		{Date: day("2024-01-01"), Close: 101},
		{Date: day("2024-01-02").Add(16 * time.Hour), Close: 99},
		{Date: day("2024-01-02"), Close: 102},
		{Date: day("2024-01-04"), Close: 0},
		{Date: day("2024-01-05"), Close: math.NaN()},
		{Date: day("2024-01-06"), Close: math.Inf(1)},
		{Date: day("2024-01-07"), Close: -4},
	}

	s := NormalizeSeries(raw)

	require.Len(t, s, 3)
	assert.Equal(t, day("2024-01-01"), s[0].Date)
	assert.Equal(t, day("2024-01-02"), s[1].Date)
	assert.Equal(t, 102.0, s[1].Close, "last point of a duplicated day wins")
	assert.Equal(t, day("2024-01-03"), s[2].Date)
	assert.NoError(t, s.Validate())
}

func TestNormalizeSeries_Empty(t *testing.T) {
	s := NormalizeSeries(nil)
	assert.Empty(t, s)
	_, ok := s.Last()
	assert.False(t, ok)
}

func TestSeries_TrimBefore(t *testing.T) {
	s := NormalizeSeries([]Point{
		{Date: day("1969-12-30"), Close: 1},
		{Date: day("1970-01-01"), Close: 2},
		{Date: day("1990-06-01"), Close: 3},
	})

	trimmed := s.TrimBefore(MinSeriesDate)

	require.Len(t, trimmed, 2)
	assert.Equal(t, MinSeriesDate, trimmed[0].Date)

	assert.Empty(t, s.TrimBefore(day("2000-01-01")))
	assert.Len(t, s.TrimBefore(day("1900-01-01")), 3)
}

func TestSeries_Validate(t *testing.T) {
	dup := Series{{Date: day("2024-01-01"), Close: 1}, {Date: day("2024-01-01"), Close: 2}}
	assert.Error(t, dup.Validate())

	desc := Series{{Date: day("2024-01-02"), Close: 1}, {Date: day("2024-01-01"), Close: 2}}
	assert.Error(t, desc.Validate())

	neg := Series{{Date: day("2024-01-01"), Close: -1}}
	assert.Error(t, neg.Validate())
}

func TestSeries_Fresh(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	window := 72 * time.Hour

	twoDaysOld := Series{{Date: day("2024-03-08"), Close: 1}}
	fourDaysOld := Series{{Date: day("2024-03-06"), Close: 1}}

	assert.True(t, twoDaysOld.Fresh(now, window))
	assert.False(t, fourDaysOld.Fresh(now, window))
	assert.False(t, Series(nil).Fresh(now, window))
}
