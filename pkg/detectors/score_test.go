package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/bearingml/pkg/tensor"
)

func tensorFrom(t *testing.T, rows [][]float64) *tensor.Tensor3 {
	t.Helper()
	x, err := tensor.FromMatrix(rows)
	require.NoError(t, err)
	return x
}

func makeIndex(n int) []time.Time {
	start := time.Date(2004, 2, 12, 10, 0, 0, 0, time.UTC)
	index := make([]time.Time, n)
	for i := range index {
		index[i] = start.Add(time.Duration(i) * 10 * time.Minute)
	}
	return index
}

func TestLosses(t *testing.T) {
	x := tensorFrom(t, [][]float64{
		{0, 0, 0, 0},
		{1, 1, 1, 1},
	})
	xhat := tensorFrom(t, [][]float64{
		{0.1, -0.1, 0.3, 0.1}, // mean abs diff 0.15
		{1, 1, 1, 2},          // mean abs diff 0.25
	})

	losses, err := Losses(x, xhat)
	require.NoError(t, err)
	require.Len(t, losses, 2)
	assert.InDelta(t, 0.15, losses[0], 1e-12)
	assert.InDelta(t, 0.25, losses[1], 1e-12)
}

func TestLossesShapeMismatch(t *testing.T) {
	x := tensorFrom(t, [][]float64{{1, 2}})
	xhat := tensorFrom(t, [][]float64{{1, 2, 3}})

	_, err := Losses(x, xhat)
	var shapeErr *tensor.ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestEvaluate(t *testing.T) {
	x := tensorFrom(t, [][]float64{{0}, {0}, {0}})
	xhat := tensorFrom(t, [][]float64{{0.1}, {0.5}, {0.9}})
	index := makeIndex(3)

	scores, err := Evaluate(index, x, xhat, 0.5)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.False(t, scores[0].IsAnomaly)
	assert.False(t, scores[1].IsAnomaly, "loss equal to threshold is not anomalous")
	assert.True(t, scores[2].IsAnomaly)
	for i, s := range scores {
		assert.Equal(t, index[i], s.Timestamp)
		assert.Equal(t, 0.5, s.Threshold)
	}
}

func TestEvaluateIndexMismatch(t *testing.T) {
	x := tensorFrom(t, [][]float64{{0}, {0}})
	_, err := Evaluate(makeIndex(3), x, x, 0.5)
	assert.Error(t, err)
}

func TestThresholdMonotonicity(t *testing.T) {
	x := tensorFrom(t, [][]float64{{0}, {0}, {0}, {0}, {0}})
	xhat := tensorFrom(t, [][]float64{{0.1}, {0.3}, {0.5}, {0.7}, {0.9}})
	index := makeIndex(5)

	// Raising the threshold can only reduce the anomaly count.
	prev := 6
	for _, threshold := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		scores, err := Evaluate(index, x, xhat, threshold)
		require.NoError(t, err)

		count := CountAnomalies(scores)
		assert.LessOrEqual(t, count, prev,
			"threshold %g flagged more samples than a lower threshold", threshold)
		prev = count
	}
}

func TestCombine(t *testing.T) {
	index := makeIndex(5)
	train := []Score{
		{Timestamp: index[0], Loss: 0.1},
		{Timestamp: index[1], Loss: 0.2},
	}
	test := []Score{
		{Timestamp: index[2], Loss: 0.9, IsAnomaly: true},
		{Timestamp: index[3], Loss: 0.8, IsAnomaly: true},
	}

	combined := Combine(train, test)

	// Plain concatenation: chronological order preserved, nothing
	// re-sorted or deduplicated.
	require.Len(t, combined, 4)
	assert.Equal(t, train[0], combined[0])
	assert.Equal(t, train[1], combined[1])
	assert.Equal(t, test[0], combined[2])
	assert.Equal(t, test[1], combined[3])
	assert.Equal(t, 2, CountAnomalies(combined))
}
