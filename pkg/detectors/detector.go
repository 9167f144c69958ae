// Package detectors provides the model-facing contracts for reconstruction
// based anomaly detection.
package detectors

import (
	"time"

	"github.com/hed1ad/bearingml/pkg/tensor"
)

// SequenceModel is the common interface for trainable sequence models that
// reconstruct their own input.
type SequenceModel interface {
	// Fit trains the model to reconstruct the training tensor. The target
	// equals the input; no labels are involved. The returned history is the
	// only channel for convergence quality: a plateauing or diverging loss
	// curve is data for the operator, never an error.
	Fit(train *tensor.Tensor3) (*History, error)

	// Predict returns the reconstruction of the input, same shape as the
	// input. Deterministic for fixed trained weights.
	Predict(x *tensor.Tensor3) (*tensor.Tensor3, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// History records per-epoch training and validation loss. Validation loss is
// absent when the model was trained without a validation split.
type History struct {
	Loss    []float64
	ValLoss []float64
}

// FinalLoss returns the last training loss, or 0 for an empty history.
func (h *History) FinalLoss() float64 {
	if len(h.Loss) == 0 {
		return 0
	}
	return h.Loss[len(h.Loss)-1]
}

// Score is a scored sample: the reconstruction loss at one timestamp and
// its classification against the threshold in force.
type Score struct {
	Timestamp time.Time
	Loss      float64
	Threshold float64
	IsAnomaly bool
}

// Config holds common training configuration for sequence models.
type Config struct {
	// Epochs is the number of passes over the training tensor.
	Epochs int
	// BatchSize is the number of samples per gradient step.
	BatchSize int
	// ValidationSplit is the trailing fraction of the training tensor held
	// out for loss monitoring only.
	ValidationSplit float64
	// LearningRate for the optimizer.
	LearningRate float64
	// RandomSeed for weight initialization and batch shuffling.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for model training.
func DefaultConfig() Config {
	return Config{
		Epochs:          100,
		BatchSize:       10,
		ValidationSplit: 0.05,
		LearningRate:    0.001,
		RandomSeed:      42,
	}
}
