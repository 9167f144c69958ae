package scale

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/bearingml/pkg/dataset"
)

func buildSeries(t *testing.T, channels []string, values [][]float64) *dataset.Series {
	t.Helper()

	start := time.Date(2004, 2, 12, 10, 0, 0, 0, time.UTC)
	index := make([]time.Time, len(values))
	for i := range index {
		index[i] = start.Add(time.Duration(i) * 10 * time.Minute)
	}
	s, err := dataset.NewSeries(index, channels, values)
	require.NoError(t, err)
	return s
}

func TestFitTransform(t *testing.T) {
	train := buildSeries(t, []string{"ch1", "ch2"}, [][]float64{
		{0, 10},
		{5, 20},
		{10, 30},
	})

	m := NewMinMaxScaler()
	require.NoError(t, m.Fit(train))

	scaled, err := m.Transform(train)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0}, scaled.Values[0])
	assert.Equal(t, []float64{0.5, 0.5}, scaled.Values[1])
	assert.Equal(t, []float64{1, 1}, scaled.Values[2])
}

func TestTransformOutsideTrainingRange(t *testing.T) {
	train := buildSeries(t, []string{"ch1"}, [][]float64{{0}, {10}})
	test := buildSeries(t, []string{"ch1"}, [][]float64{{-5}, {25}})

	m := NewMinMaxScaler()
	require.NoError(t, m.Fit(train))

	scaled, err := m.Transform(test)
	require.NoError(t, err)

	// Values outside [0, 1] are expected for data beyond the training
	// range, never an error.
	assert.Equal(t, []float64{-0.5}, scaled.Values[0])
	assert.Equal(t, []float64{2.5}, scaled.Values[1])
}

func TestInverseTransformRoundTrip(t *testing.T) {
	train := buildSeries(t, []string{"ch1", "ch2"}, [][]float64{
		{0.047, 123.4},
		{0.112, 98.7},
		{0.093, 140.2},
	})

	m := NewMinMaxScaler()
	require.NoError(t, m.Fit(train))

	scaled, err := m.Transform(train)
	require.NoError(t, err)
	back, err := m.InverseTransform(scaled)
	require.NoError(t, err)

	for i := range train.Values {
		for c := range train.Values[i] {
			assert.InDelta(t, train.Values[i][c], back.Values[i][c], 1e-12)
		}
	}
}

func TestFitDegenerateChannel(t *testing.T) {
	train := buildSeries(t, []string{"ch1", "flat"}, [][]float64{
		{0, 7},
		{1, 7},
	})

	m := NewMinMaxScaler()
	err := m.Fit(train)

	var degenerate *DegenerateChannelError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, "flat", degenerate.Channel)
	assert.Nil(t, m.Params(), "failed fit must not leave parameters behind")
}

func TestTransformBeforeFit(t *testing.T) {
	s := buildSeries(t, []string{"ch1"}, [][]float64{{1}})
	m := NewMinMaxScaler()

	_, err := m.Transform(s)
	assert.Error(t, err)
}

func TestTransformChannelMismatch(t *testing.T) {
	train := buildSeries(t, []string{"ch1"}, [][]float64{{0}, {1}})
	other := buildSeries(t, []string{"ch1", "ch2"}, [][]float64{{0, 0}})

	m := NewMinMaxScaler()
	require.NoError(t, m.Fit(train))

	_, err := m.Transform(other)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	train := buildSeries(t, []string{"ch1", "ch2"}, [][]float64{
		{0, 10},
		{4, 30},
	})
	test := buildSeries(t, []string{"ch1", "ch2"}, [][]float64{{2, 15}})

	original := NewMinMaxScaler()
	require.NoError(t, original.Fit(train))

	var buf bytes.Buffer
	require.NoError(t, original.Save(&buf))

	loaded := NewMinMaxScaler()
	require.NoError(t, loaded.Load(&buf))
	assert.Equal(t, original.Params(), loaded.Params())

	// The loaded transform must reproduce the original exactly.
	want, err := original.Transform(test)
	require.NoError(t, err)
	got, err := loaded.Transform(test)
	require.NoError(t, err)
	assert.Equal(t, want.Values, got.Values)
}

func TestLoadRejectsDegenerateParams(t *testing.T) {
	m := NewMinMaxScaler()
	err := m.Load(bytes.NewReader([]byte(
		`{"channels":["ch1"],"min":[3],"max":[3]}`,
	)))

	var degenerate *DegenerateChannelError
	assert.ErrorAs(t, err, &degenerate)
}
