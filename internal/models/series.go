// Package models defines the shared domain types for fbinv.
package models

import (
	"sort"
	"time"
)

// Frequency is the sampling granularity of a time series.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyIntraday Frequency = "intraday"
)

// SeriesKindPriceHistory is the only series kind currently cached.
const SeriesKindPriceHistory = "price_history"

// DateLayout is the serialized form of calendar dates in cache files and
// provider requests.
const DateLayout = "2006-01-02"

// Day truncates a timestamp to midnight UTC. Daily bars carry no time
// component, so every date entering the engine goes through this first.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Yesterday returns the most recent complete trading date. The engine never
// requests today so that a partial session is not cached.
func Yesterday(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, -1)
}

// Bar is a single OHLC observation.
type Bar struct {
	Date  time.Time `json:"as_of_date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Series is a price history: ordered ascending by date, one bar per date.
// The invariant is restored by Merge after any mutation.
type Series []Bar

// Empty reports whether the series has no bars.
func (s Series) Empty() bool { return len(s) == 0 }

// MinDate returns the earliest bar date, or the zero time for an empty series.
func (s Series) MinDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	min := s[0].Date
	for _, b := range s[1:] {
		if b.Date.Before(min) {
			min = b.Date
		}
	}
	return min
}

// MaxDate returns the latest bar date, or the zero time for an empty series.
func (s Series) MaxDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	max := s[0].Date
	for _, b := range s[1:] {
		if b.Date.After(max) {
			max = b.Date
		}
	}
	return max
}

// Closes returns the close column in date order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Merge combines s with later, deduplicates by date with later winning on
// conflict, and returns the result sorted ascending.
func (s Series) Merge(later Series) Series {
	byDate := make(map[time.Time]Bar, len(s)+len(later))
	for _, b := range s {
		byDate[Day(b.Date)] = b
	}
	for _, b := range later {
		b.Date = Day(b.Date)
		byDate[b.Date] = b
	}
	out := make(Series, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ConvertWith multiplies each bar by the same-dated bar of rates, scaled by
// multiplier. Dates present in only one of the two series are dropped, so the
// result covers their intersection. A zero multiplier means no scaling.
func (s Series) ConvertWith(rates Series, multiplier float64) Series {
	if multiplier == 0 {
		multiplier = 1
	}
	byDate := make(map[time.Time]Bar, len(rates))
	for _, b := range rates {
		byDate[Day(b.Date)] = b
	}
	var out Series
	for _, b := range s {
		r, ok := byDate[Day(b.Date)]
		if !ok {
			continue
		}
		out = append(out, Bar{
			Date:  Day(b.Date),
			Open:  b.Open * r.Open * multiplier,
			High:  b.High * r.High * multiplier,
			Low:   b.Low * r.Low * multiplier,
			Close: b.Close * r.Close * multiplier,
		})
	}
	return out
}

// DateRange is an inclusive calendar-date span. End is always strictly in
// the past by the time a sync uses it.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered, inclusive of both ends.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Gap flags which edges of a desired range the cached series does not cover.
type Gap struct {
	LowerMissing bool
	UpperMissing bool
}

// GapsIn compares the series extent against a desired range. An empty series
// is missing on both edges.
func (s Series) GapsIn(want DateRange) Gap {
	if s.Empty() {
		return Gap{LowerMissing: true, UpperMissing: true}
	}
	return Gap{
		LowerMissing: s.MinDate().After(want.Start),
		UpperMissing: s.MaxDate().Before(want.End),
	}
}

// SyncOutcome records the result of synchronizing one instrument. Bulk
// operations collect outcomes instead of aborting on the first failure.
type SyncOutcome struct {
	Code string `json:"code"`
	Rows int    `json:"rows"`
	Err  error  `json:"-"`
}

// OK reports whether the sync produced a non-empty series without error.
func (o SyncOutcome) OK() bool { return o.Err == nil && o.Rows > 0 }
