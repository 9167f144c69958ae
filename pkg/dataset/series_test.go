package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeries(t *testing.T, n int) *Series {
	t.Helper()

	start := time.Date(2004, 2, 12, 10, 0, 0, 0, time.UTC)
	index := make([]time.Time, n)
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		index[i] = start.Add(time.Duration(i) * 10 * time.Minute)
		values[i] = []float64{float64(i), float64(i) * 2}
	}

	s, err := NewSeries(index, []string{"ch1", "ch2"}, values)
	require.NoError(t, err)
	return s
}

func TestNewSeriesSorts(t *testing.T) {
	t0 := time.Date(2004, 2, 12, 10, 0, 0, 0, time.UTC)
	index := []time.Time{t0.Add(time.Hour), t0, t0.Add(2 * time.Hour)}
	values := [][]float64{{1}, {0}, {2}}

	s, err := NewSeries(index, []string{"ch1"}, values)
	require.NoError(t, err)

	assert.Equal(t, []float64{0}, s.Values[0])
	assert.Equal(t, []float64{2}, s.Values[2])
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Index[i].After(s.Index[i-1]), "index must be strictly increasing")
	}
}

func TestNewSeriesRejects(t *testing.T) {
	t0 := time.Date(2004, 2, 12, 10, 0, 0, 0, time.UTC)

	t.Run("duplicate timestamps", func(t *testing.T) {
		_, err := NewSeries(
			[]time.Time{t0, t0},
			[]string{"ch1"},
			[][]float64{{1}, {2}},
		)
		assert.Error(t, err)
	})

	t.Run("ragged rows", func(t *testing.T) {
		_, err := NewSeries(
			[]time.Time{t0},
			[]string{"ch1", "ch2"},
			[][]float64{{1}},
		)
		assert.Error(t, err)
	})

	t.Run("index length mismatch", func(t *testing.T) {
		_, err := NewSeries(
			[]time.Time{t0},
			[]string{"ch1"},
			[][]float64{{1}, {2}},
		)
		assert.Error(t, err)
	})
}

func TestSplit(t *testing.T) {
	s := makeSeries(t, 10)

	tests := []struct {
		name      string
		boundary  time.Time
		wantTrain int
		wantTest  int
		wantErr   bool
	}{
		{
			name:      "interior boundary",
			boundary:  s.Index[7],
			wantTrain: 7,
			wantTest:  3,
		},
		{
			name:      "boundary between rows",
			boundary:  s.Index[4].Add(time.Minute),
			wantTrain: 5,
			wantTest:  5,
		},
		{
			name:     "boundary at first row",
			boundary: s.Index[0],
			wantErr:  true,
		},
		{
			name:     "boundary before range",
			boundary: s.Index[0].Add(-time.Hour),
			wantErr:  true,
		},
		{
			name:     "boundary after range",
			boundary: s.Index[9].Add(time.Hour),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test, err := s.Split(tt.boundary)

			if tt.wantErr {
				var boundaryErr *BoundaryError
				assert.ErrorAs(t, err, &boundaryErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrain, train.Len())
			assert.Equal(t, tt.wantTest, test.Len())

			// Disjoint and order-preserving: train ends before the
			// boundary, test starts at or after it.
			assert.True(t, train.Index[train.Len()-1].Before(tt.boundary))
			assert.False(t, test.Index[0].Before(tt.boundary))
			assert.Equal(t, s.Values[:train.Len()], train.Values)
			assert.Equal(t, s.Values[train.Len():], test.Values)
		})
	}
}

func TestSplitEmptySeries(t *testing.T) {
	s, err := NewSeries(nil, nil, nil)
	require.NoError(t, err)

	_, _, err = s.Split(time.Now())
	var boundaryErr *BoundaryError
	assert.ErrorAs(t, err, &boundaryErr)
}
