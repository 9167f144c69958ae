// Package dataset builds and partitions the aggregated vibration series.
package dataset

import (
	"fmt"
	"sort"
	"time"
)

// BoundaryError reports a train/test split boundary that cannot produce two
// usable windows.
type BoundaryError struct {
	Boundary time.Time
	Reason   string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("dataset: invalid boundary %s: %s",
		e.Boundary.Format(time.RFC3339), e.Reason)
}

// Series is a multivariate time series: one row per timestamp, one column
// per sensor channel. The index is strictly increasing. A Series is built
// once and treated as immutable afterwards.
type Series struct {
	Index    []time.Time
	Channels []string
	Values   [][]float64 // Values[i][c] is channel c at Index[i]
}

// NewSeries builds a Series from parallel index/value slices, sorting rows
// chronologically. Duplicate timestamps or ragged rows are rejected.
func NewSeries(index []time.Time, channels []string, values [][]float64) (*Series, error) {
	if len(index) != len(values) {
		return nil, fmt.Errorf("dataset: %d timestamps for %d rows", len(index), len(values))
	}
	for i, row := range values {
		if len(row) != len(channels) {
			return nil, fmt.Errorf("dataset: row %d has %d values, want %d", i, len(row), len(channels))
		}
	}

	s := &Series{
		Index:    append([]time.Time(nil), index...),
		Channels: append([]string(nil), channels...),
		Values:   append([][]float64(nil), values...),
	}
	sort.Sort(byTime{s})

	for i := 1; i < len(s.Index); i++ {
		if !s.Index[i].After(s.Index[i-1]) {
			return nil, fmt.Errorf("dataset: duplicate timestamp %s",
				s.Index[i].Format(time.RFC3339))
		}
	}
	return s, nil
}

type byTime struct{ s *Series }

func (b byTime) Len() int           { return len(b.s.Index) }
func (b byTime) Less(i, j int) bool { return b.s.Index[i].Before(b.s.Index[j]) }
func (b byTime) Swap(i, j int) {
	b.s.Index[i], b.s.Index[j] = b.s.Index[j], b.s.Index[i]
	b.s.Values[i], b.s.Values[j] = b.s.Values[j], b.s.Values[i]
}

// Len returns the number of rows.
func (s *Series) Len() int { return len(s.Index) }

// Split partitions the series at the given boundary: train holds rows with
// index before the boundary, test holds rows at or after it. The boundary
// must fall strictly inside the series range so that both windows are
// non-empty; anything else fails with BoundaryError.
func (s *Series) Split(boundary time.Time) (train, test *Series, err error) {
	if s.Len() == 0 {
		return nil, nil, &BoundaryError{Boundary: boundary, Reason: "series is empty"}
	}

	cut := sort.Search(s.Len(), func(i int) bool {
		return !s.Index[i].Before(boundary)
	})
	if cut == 0 {
		return nil, nil, &BoundaryError{Boundary: boundary, Reason: "training window is empty"}
	}
	if cut == s.Len() {
		return nil, nil, &BoundaryError{Boundary: boundary, Reason: "test window is empty"}
	}

	return s.slice(0, cut), s.slice(cut, s.Len()), nil
}

// slice returns a window sharing the backing rows. Windows are read-only by
// the same convention as the parent series.
func (s *Series) slice(lo, hi int) *Series {
	return &Series{
		Index:    s.Index[lo:hi],
		Channels: s.Channels,
		Values:   s.Values[lo:hi],
	}
}
