// Package scale provides the per-channel min-max transform fitted on the
// healthy training window.
package scale

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hed1ad/bearingml/pkg/dataset"
)

// DegenerateChannelError reports a constant training channel, which cannot
// be min-max scaled.
type DegenerateChannelError struct {
	Channel string
	Value   float64
}

func (e *DegenerateChannelError) Error() string {
	return fmt.Sprintf("scale: channel %s is constant at %g", e.Channel, e.Value)
}

// Params holds the fitted per-channel scaling parameters.
type Params struct {
	Channels []string  `json:"channels"`
	Min      []float64 `json:"min"`
	Max      []float64 `json:"max"`
}

// MinMaxScaler maps each channel to (v - min) / (max - min), with min and
// max taken from the training window only. Parameters are frozen after Fit;
// the scaler is never refitted on test data.
type MinMaxScaler struct {
	params *Params
}

// NewMinMaxScaler returns an unfitted scaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit computes per-channel min and max over the training series. A constant
// channel fails with DegenerateChannelError rather than being silently
// clamped. Fitting an already-fitted scaler replaces its parameters.
func (m *MinMaxScaler) Fit(train *dataset.Series) error {
	if train.Len() == 0 {
		return errors.New("scale: empty training series")
	}

	p := &Params{
		Channels: append([]string(nil), train.Channels...),
		Min:      append([]float64(nil), train.Values[0]...),
		Max:      append([]float64(nil), train.Values[0]...),
	}
	for _, row := range train.Values[1:] {
		for c, v := range row {
			if v < p.Min[c] {
				p.Min[c] = v
			}
			if v > p.Max[c] {
				p.Max[c] = v
			}
		}
	}
	for c := range p.Min {
		if p.Max[c] == p.Min[c] {
			return &DegenerateChannelError{Channel: p.Channels[c], Value: p.Min[c]}
		}
	}

	m.params = p
	return nil
}

// Transform applies the fitted parameters elementwise and returns a new
// series. Test data outside the training range produces values outside
// [0, 1]; that is expected, not an error.
func (m *MinMaxScaler) Transform(s *dataset.Series) (*dataset.Series, error) {
	if err := m.check(s); err != nil {
		return nil, err
	}
	return m.apply(s, func(v float64, c int) float64 {
		return (v - m.params.Min[c]) / (m.params.Max[c] - m.params.Min[c])
	})
}

// InverseTransform recovers raw values from a scaled series.
func (m *MinMaxScaler) InverseTransform(s *dataset.Series) (*dataset.Series, error) {
	if err := m.check(s); err != nil {
		return nil, err
	}
	return m.apply(s, func(v float64, c int) float64 {
		return v*(m.params.Max[c]-m.params.Min[c]) + m.params.Min[c]
	})
}

func (m *MinMaxScaler) check(s *dataset.Series) error {
	if m.params == nil {
		return errors.New("scale: scaler not fitted")
	}
	if len(s.Channels) != len(m.params.Channels) {
		return fmt.Errorf("scale: %d channels, fitted on %d",
			len(s.Channels), len(m.params.Channels))
	}
	return nil
}

func (m *MinMaxScaler) apply(s *dataset.Series, f func(v float64, c int) float64) (*dataset.Series, error) {
	values := make([][]float64, s.Len())
	for i, row := range s.Values {
		out := make([]float64, len(row))
		for c, v := range row {
			out[c] = f(v, c)
		}
		values[i] = out
	}
	return dataset.NewSeries(s.Index, s.Channels, values)
}

// Params returns a copy of the fitted parameters, or nil if unfitted.
func (m *MinMaxScaler) Params() *Params {
	if m.params == nil {
		return nil
	}
	return &Params{
		Channels: append([]string(nil), m.params.Channels...),
		Min:      append([]float64(nil), m.params.Min...),
		Max:      append([]float64(nil), m.params.Max...),
	}
}

// Save writes the fitted parameters as JSON so future data can be scored
// with an identical transform.
func (m *MinMaxScaler) Save(w io.Writer) error {
	if m.params == nil {
		return errors.New("scale: scaler not fitted")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.params)
}

// Load reads parameters previously written by Save.
func (m *MinMaxScaler) Load(r io.Reader) error {
	var p Params
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return fmt.Errorf("scale: load params: %w", err)
	}
	if len(p.Min) != len(p.Channels) || len(p.Max) != len(p.Channels) {
		return errors.New("scale: params channel/min/max lengths differ")
	}
	for c := range p.Min {
		if p.Max[c] == p.Min[c] {
			return &DegenerateChannelError{Channel: p.Channels[c], Value: p.Min[c]}
		}
	}
	m.params = &p
	return nil
}
