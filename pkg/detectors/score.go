package detectors

import (
	"fmt"
	"time"

	"github.com/hed1ad/bearingml/pkg/tensor"
)

// Losses returns the per-sample reconstruction loss: the mean absolute
// difference between x and its reconstruction xhat, taken over all
// timesteps and channels of each sample. The tensors must share a shape.
func Losses(x, xhat *tensor.Tensor3) ([]float64, error) {
	if !x.SameShape(xhat) {
		return nil, &tensor.ShapeError{
			Op:   "Losses",
			Want: fmt.Sprintf("(%d, %d, %d)", x.N, x.T, x.C),
			Got:  fmt.Sprintf("(%d, %d, %d)", xhat.N, xhat.T, xhat.C),
		}
	}

	losses := make([]float64, x.N)
	for i := 0; i < x.N; i++ {
		a, b := x.Sample(i), xhat.Sample(i)
		var sum float64
		for j := range a {
			d := b[j] - a[j]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		losses[i] = sum / float64(len(a))
	}
	return losses, nil
}

// Evaluate scores a window: each sample's reconstruction loss is compared
// against the threshold, and samples with Loss > Threshold are flagged
// anomalous. The threshold is operator-supplied configuration; it is never
// inferred here. The index must have one timestamp per sample.
func Evaluate(index []time.Time, x, xhat *tensor.Tensor3, threshold float64) ([]Score, error) {
	losses, err := Losses(x, xhat)
	if err != nil {
		return nil, err
	}
	if len(index) != len(losses) {
		return nil, fmt.Errorf("detectors: %d timestamps for %d samples", len(index), len(losses))
	}

	scores := make([]Score, len(losses))
	for i, loss := range losses {
		scores[i] = Score{
			Timestamp: index[i],
			Loss:      loss,
			Threshold: threshold,
			IsAnomaly: loss > threshold,
		}
	}
	return scores, nil
}

// Combine concatenates already-ordered, disjoint score windows into one
// chronological record for reporting. It never re-sorts or deduplicates.
func Combine(windows ...[]Score) []Score {
	var n int
	for _, w := range windows {
		n += len(w)
	}
	out := make([]Score, 0, n)
	for _, w := range windows {
		out = append(out, w...)
	}
	return out
}

// CountAnomalies returns the number of flagged samples.
func CountAnomalies(scores []Score) int {
	var n int
	for _, s := range scores {
		if s.IsAnomaly {
			n++
		}
	}
	return n
}
