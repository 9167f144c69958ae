package lstmae

import (
	"errors"
	"math"

	"github.com/hed1ad/bearingml/pkg/detectors"
	"github.com/hed1ad/bearingml/pkg/tensor"
)

// Adam optimizer constants.
const (
	beta1   = 0.9
	beta2   = 0.999
	epsilon = 1e-8
)

// Fit trains the autoencoder to reconstruct its own input using mean
// absolute error and the Adam optimizer. The trailing ValidationSplit
// fraction of the tensor is held out for monitoring only; the rest is
// shuffled each epoch from the model's seeded RNG, so a fixed seed yields
// one exact loss trajectory.
//
// Convergence quality is not an error condition: a flat or diverging curve
// comes back in the History for the operator to judge.
func (a *Autoencoder) Fit(train *tensor.Tensor3) (*detectors.History, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if train.N == 0 {
		return nil, errors.New("lstmae: empty training data")
	}
	if err := a.checkChannels(train); err != nil {
		return nil, err
	}

	nVal := int(float64(train.N) * a.cfg.ValidationSplit)
	if nVal >= train.N {
		nVal = train.N - 1
	}
	nTrain := train.N - nVal

	batch := a.cfg.BatchSize
	if batch <= 0 || batch > nTrain {
		batch = nTrain
	}

	hist := &detectors.History{}
	for epoch := 0; epoch < a.cfg.Epochs; epoch++ {
		perm := a.rng.Perm(nTrain)
		var epochLoss float64

		for start := 0; start < nTrain; start += batch {
			end := start + batch
			if end > nTrain {
				end = nTrain
			}
			scale := 1 / float64(end-start)

			for _, i := range perm[start:end] {
				f := a.forward(train, i)
				epochLoss += sampleLoss(train, i, f)
				a.backward(train, i, f, scale)
			}
			a.step++
			a.applyGradients()
		}

		hist.Loss = append(hist.Loss, epochLoss/float64(nTrain))
		if nVal > 0 {
			var valLoss float64
			for i := nTrain; i < train.N; i++ {
				valLoss += sampleLoss(train, i, a.forward(train, i))
			}
			hist.ValLoss = append(hist.ValLoss, valLoss/float64(nVal))
		}
	}

	a.trained = true
	return hist, nil
}

// sampleLoss is the mean absolute reconstruction error of one sample.
func sampleLoss(x *tensor.Tensor3, i int, f *forwardCache) float64 {
	var sum float64
	for t := 0; t < x.T; t++ {
		for c := 0; c < x.C; c++ {
			sum += math.Abs(f.y[t][c] - x.At(i, t, c))
		}
	}
	return sum / float64(x.T*x.C)
}

// backward backpropagates one sample's MAE gradient through the network,
// accumulating into the parameter gradient buffers. scale is 1/batchsize.
func (a *Autoencoder) backward(x *tensor.Tensor3, i int, f *forwardCache, scale float64) {
	T, C := x.T, x.C
	norm := scale / float64(T*C)

	// Output projection and gradient into the top decoder layer.
	dh4 := make([][]float64, T)
	for t := 0; t < T; t++ {
		dh4[t] = make([]float64, a.dec2.units)
		for c := 0; c < C; c++ {
			diff := f.y[t][c] - x.At(i, t, c)
			var dy float64
			if diff > 0 {
				dy = norm
			} else if diff < 0 {
				dy = -norm
			}
			if dy == 0 {
				continue
			}
			for j, hv := range f.h4[t] {
				a.out.W.g[c][j] += dy * hv
				dh4[t][j] += a.out.W.val[c][j] * dy
			}
			a.out.B.g[0][c] += dy
		}
	}

	// Decoder stack.
	dh3 := a.dec2.backward(f.h3, f.h4, dh4)
	latentSeq := make([][]float64, T)
	for t := range latentSeq {
		latentSeq[t] = f.latent
	}
	dLatentSeq := a.dec1.backward(latentSeq, f.h3, dh3)

	// The repeat stage fans the latent vector out to every timestep, so
	// its gradient is the sum over timesteps, entering the encoder at the
	// final state only.
	dLatent := make([]float64, latentWidth)
	for _, d := range dLatentSeq {
		for j, v := range d {
			dLatent[j] += v
		}
	}
	dh2 := make([][]float64, T)
	for t := range dh2 {
		dh2[t] = make([]float64, a.enc2.units)
	}
	dh2[T-1] = dLatent

	// Encoder stack.
	xs := make([][]float64, T)
	for t := 0; t < T; t++ {
		row := make([]float64, C)
		for c := 0; c < C; c++ {
			row[c] = x.At(i, t, c)
		}
		xs[t] = row
	}
	dh1 := a.enc2.backward(f.h1, f.h2, dh2)
	a.enc1.backward(xs, f.h1, dh1)
}

// backward runs full backpropagation through time. inputs[t] and h[t] are
// the cached layer input and activation at timestep t, dh[t] the gradient
// flowing into h[t] from the layer above. Gradients accumulate into the
// layer's parameter buffers; the return value is the gradient with respect
// to the inputs.
func (l *recurrent) backward(inputs, h, dh [][]float64) [][]float64 {
	T := len(h)
	dIn := make([][]float64, T)
	var dpreNext []float64

	for t := T - 1; t >= 0; t-- {
		dpre := make([]float64, l.units)
		copy(dpre, dh[t])
		if dpreNext != nil {
			for u := 0; u < l.units; u++ {
				if dpreNext[u] == 0 {
					continue
				}
				for j := 0; j < l.units; j++ {
					dpre[j] += l.U.val[u][j] * dpreNext[u]
				}
			}
		}
		// ReLU gate.
		for u := range dpre {
			if h[t][u] <= 0 {
				dpre[u] = 0
			}
		}

		din := make([]float64, l.in)
		for u := 0; u < l.units; u++ {
			if dpre[u] == 0 {
				continue
			}
			for j, xv := range inputs[t] {
				l.W.g[u][j] += dpre[u] * xv
				din[j] += l.W.val[u][j] * dpre[u]
			}
			if t > 0 {
				for j, hv := range h[t-1] {
					l.U.g[u][j] += dpre[u] * hv
				}
			}
			l.B.g[0][u] += dpre[u]
		}
		dIn[t] = din
		dpreNext = dpre
	}
	return dIn
}

// applyGradients performs one Adam step over every parameter and clears the
// gradient buffers. The L2 penalty applies to the first encoder layer's
// input kernel only.
func (a *Autoencoder) applyGradients() {
	lr := a.cfg.LearningRate
	a.enc1.W.adamStep(lr, a.step, a.l2)
	for _, p := range []*param{
		a.enc1.U, a.enc1.B,
		a.enc2.W, a.enc2.U, a.enc2.B,
		a.dec1.W, a.dec1.U, a.dec1.B,
		a.dec2.W, a.dec2.U, a.dec2.B,
		a.out.W, a.out.B,
	} {
		p.adamStep(lr, a.step, 0)
	}
}

func (p *param) adamStep(lr float64, step int, l2 float64) {
	bc1 := 1 - math.Pow(beta1, float64(step))
	bc2 := 1 - math.Pow(beta2, float64(step))

	for i := range p.val {
		for j := range p.val[i] {
			g := p.g[i][j]
			if l2 != 0 {
				g += 2 * l2 * p.val[i][j]
			}
			p.m[i][j] = beta1*p.m[i][j] + (1-beta1)*g
			p.v[i][j] = beta2*p.v[i][j] + (1-beta2)*g*g
			p.val[i][j] -= lr * (p.m[i][j] / bc1) / (math.Sqrt(p.v[i][j]/bc2) + epsilon)
			p.g[i][j] = 0
		}
	}
}
