package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// MinSeriesDate is the earliest date a stored series may start at. Some
// providers emit placeholder rows before it.
var MinSeriesDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Point is one daily close.
type Point struct {
	Date  time.Time `json:"date" msgpack:"d"`
	Close float64   `json:"close" msgpack:"c"`
}

// Series is a daily close series, ascending by date with one point per day.
type Series []Point

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeSeries sorts points by day, keeps the last point seen for a
// duplicated day and drops non-finite or non-positive closes.
func NormalizeSeries(points []Point) Series {
	byDay := make(map[time.Time]float64, len(points))
	for _, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			continue
		}
		byDay[Day(p.Date)] = p.Close
	}

	out := make(Series, 0, len(byDay))
	for day, c := range byDay {
		out = append(out, Point{Date: day, Close: c})
	}
	slices.SortFunc(out, func(a, b Point) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// Last returns the most recent point.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// TrimBefore drops every point dated before from.
func (s Series) TrimBefore(from time.Time) Series {
	i, _ := slices.BinarySearchFunc(s, from, func(p Point, t time.Time) int {
		return p.Date.Compare(t)
	})
	return s[i:]
}

// Validate checks that closes are positive and finite and that dates are
// strictly ascending.
func (s Series) Validate() error {
	for i, p := range s {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return fmt.Errorf("invalid close %v at %s", p.Close, p.Date.Format(time.DateOnly))
		}
		if i > 0 && !p.Date.After(s[i-1].Date) {
			return fmt.Errorf("series not strictly ascending at %s", p.Date.Format(time.DateOnly))
		}
	}
	return nil
}

// Fresh reports whether the latest point lies within window of now.
func (s Series) Fresh(now time.Time, window time.Duration) bool {
	last, ok := s.Last()
	if !ok {
		return false
	}
	return now.Sub(last.Date) < window
}
