// Package tensor provides the 3-D sequence layout required by sequence models.
package tensor

import "fmt"

// ShapeError reports a violated shape contract between pipeline stages.
type ShapeError struct {
	Op   string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tensor: %s: want shape %s, got %s", e.Op, e.Want, e.Got)
}

// Tensor3 is an (N, T, C) tensor: N sequences of T timesteps with C channels.
// Values are stored row-major in a flat backing slice.
type Tensor3 struct {
	N, T, C int
	data    []float64
}

// New allocates a zero-filled (n, t, c) tensor.
func New(n, t, c int) *Tensor3 {
	return &Tensor3{N: n, T: t, C: c, data: make([]float64, n*t*c)}
}

// At returns the value at sample i, timestep t, channel c.
func (x *Tensor3) At(i, t, c int) float64 {
	return x.data[(i*x.T+t)*x.C+c]
}

// Set writes the value at sample i, timestep t, channel c.
func (x *Tensor3) Set(i, t, c int, v float64) {
	x.data[(i*x.T+t)*x.C+c] = v
}

// Sample returns the (T, C) slice view for sample i.
func (x *Tensor3) Sample(i int) []float64 {
	off := i * x.T * x.C
	return x.data[off : off+x.T*x.C]
}

// SameShape reports whether y has identical dimensions.
func (x *Tensor3) SameShape(y *Tensor3) bool {
	return x.N == y.N && x.T == y.T && x.C == y.C
}

func (x *Tensor3) shape() string {
	return fmt.Sprintf("(%d, %d, %d)", x.N, x.T, x.C)
}

// FromMatrix reshapes an (N, C) matrix into an (N, 1, C) tensor, one
// single-timestep sequence per row. Row order and values are preserved
// exactly. Ragged rows fail with ShapeError.
func FromMatrix(rows [][]float64) (*Tensor3, error) {
	if len(rows) == 0 {
		return New(0, 1, 0), nil
	}
	c := len(rows[0])
	x := New(len(rows), 1, c)
	for i, row := range rows {
		if len(row) != c {
			return nil, &ShapeError{
				Op:   "FromMatrix",
				Want: fmt.Sprintf("row of %d values", c),
				Got:  fmt.Sprintf("row %d with %d values", i, len(row)),
			}
		}
		copy(x.data[i*c:(i+1)*c], row)
	}
	return x, nil
}

// ToMatrix is the inverse of FromMatrix: it flattens an (N, 1, C) tensor
// back into an (N, C) matrix. Tensors with more than one timestep fail with
// ShapeError.
func (x *Tensor3) ToMatrix() ([][]float64, error) {
	if x.T != 1 {
		return nil, &ShapeError{Op: "ToMatrix", Want: "(N, 1, C)", Got: x.shape()}
	}
	rows := make([][]float64, x.N)
	for i := 0; i < x.N; i++ {
		row := make([]float64, x.C)
		copy(row, x.data[i*x.C:(i+1)*x.C])
		rows[i] = row
	}
	return rows, nil
}
