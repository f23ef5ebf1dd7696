// Package series provides date-indexed price series with the alignment and
// gap-filling rules the analytics engine depends on.
package series

import (
	"sort"
	"time"
)

// DateFormat is the canonical key format for daily observations.
const DateFormat = "2006-01-02"

// Series is a daily float64 series keyed by date string (YYYY-MM-DD).
// Dates() always returns keys in ascending order.
type Series struct {
	values map[string]float64
	dates  []string // sorted, lazily rebuilt
	dirty  bool
}

// New returns an empty series.
func New() *Series {
	return &Series{values: make(map[string]float64)}
}

// FromPoints builds a series from parallel date/value slices.
func FromPoints(dates []string, values []float64) *Series {
	s := New()
	for i, d := range dates {
		s.Set(d, values[i])
	}
	return s
}

// Set records a value for a date, overwriting any previous observation.
func (s *Series) Set(date string, value float64) {
	if _, ok := s.values[date]; !ok {
		s.dirty = true
	}
	s.values[date] = value
}

// SetTime records a value keyed by the date portion of t.
func (s *Series) SetTime(t time.Time, value float64) {
	s.Set(t.Format(DateFormat), value)
}

// Get returns the value for a date and whether it exists.
func (s *Series) Get(date string) (float64, bool) {
	v, ok := s.values[date]
	return v, ok
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.values)
}

// Dates returns the observation dates in ascending order.
func (s *Series) Dates() []string {
	if s.dirty || len(s.dates) != len(s.values) {
		s.dates = make([]string, 0, len(s.values))
		for d := range s.values {
			s.dates = append(s.dates, d)
		}
		sort.Strings(s.dates)
		s.dirty = false
	}
	return s.dates
}

// Values returns the observations in date order.
func (s *Series) Values() []float64 {
	dates := s.Dates()
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = s.values[d]
	}
	return out
}

// First returns the earliest observation.
func (s *Series) First() (float64, bool) {
	dates := s.Dates()
	if len(dates) == 0 {
		return 0, false
	}
	return s.values[dates[0]], true
}

// Last returns the latest observation.
func (s *Series) Last() (float64, bool) {
	dates := s.Dates()
	if len(dates) == 0 {
		return 0, false
	}
	return s.values[dates[len(dates)-1]], true
}

// Returns computes simple daily returns, dropping the first observation.
// A zero previous value yields a zero return for that step.
func (s *Series) Returns() []float64 {
	vals := s.Values()
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		prev := vals[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (vals[i]-prev)/prev)
	}
	return out
}

// Frame is a set of named series aligned on a shared date index.
type Frame struct {
	Dates   []string
	Columns map[string][]float64
}

// Align merges named series onto the union of their dates. Gaps are filled
// forward from the last known value, then leading gaps are filled backward
// from the first known value. Columns with no observations at all are
// dropped. Returns nil if nothing survives.
func Align(columns map[string]*Series) *Frame {
	dateSet := make(map[string]struct{})
	for _, s := range columns {
		for _, d := range s.Dates() {
			dateSet[d] = struct{}{}
		}
	}
	if len(dateSet) == 0 {
		return nil
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	frame := &Frame{Dates: dates, Columns: make(map[string][]float64, len(columns))}
	for name, s := range columns {
		if s.Len() == 0 {
			continue
		}
		col := make([]float64, len(dates))
		// forward fill
		last := 0.0
		seen := false
		firstIdx := -1
		for i, d := range dates {
			if v, ok := s.Get(d); ok {
				last = v
				if !seen {
					seen = true
					firstIdx = i
				}
			}
			col[i] = last
		}
		// backward fill the leading gap
		for i := 0; i < firstIdx; i++ {
			col[i] = col[firstIdx]
		}
		frame.Columns[name] = col
	}
	if len(frame.Columns) == 0 {
		return nil
	}
	return frame
}

// Column returns the aligned values for a name.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.Columns[name]
	return col, ok
}

// Names returns the surviving column names in sorted order.
func (f *Frame) Names() []string {
	names := make([]string, 0, len(f.Columns))
	for n := range f.Columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the length of the shared date index.
func (f *Frame) Len() int {
	return len(f.Dates)
}
