package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/neurlang/melae/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// TrainConfig holds the optimiser settings.
type TrainConfig struct {
	LearningRate float64
	Beta1        float64 // Adam beta1
	Beta2        float64 // Adam beta2
	Epsilon      float64 // Adam epsilon
	BatchSize    int
	Epochs       int
	// ValidationFraction of the rows is held out to report validation loss.
	ValidationFraction float64
	// Patience stops training after this many epochs without validation
	// improvement. Zero disables early stopping.
	Patience int
	Seed     uint64
}

// DefaultTrainConfig returns the usual Adam defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate:       0.001,
		Beta1:              0.9,
		Beta2:              0.999,
		Epsilon:            1e-8,
		BatchSize:          256,
		Epochs:             20,
		ValidationFraction: 0.1,
		Seed:               1,
	}
}

// History records the mean squared error after every epoch. ValidationLoss
// is empty when nothing was held out.
type History struct {
	TrainLoss      []float64
	ValidationLoss []float64
}

// ErrNoData is returned by Train when there are not enough rows to train on.
var ErrNoData = errors.New("model: not enough training rows")

// Train fits a to reconstruct the rows of features with mini-batch Adam on
// the mean squared error. It stamps a new RunID on a and leaves it in
// inference mode.
func Train(ctx context.Context, a *Autoencoder, features *mat.Dense, cfg TrainConfig, logger *zap.Logger) (*History, error) {
	if err := a.check(features); err != nil {
		return nil, err
	}
	log := logging.OrNop(logger)
	n, _ := features.Dims()

	valN := int(float64(n) * cfg.ValidationFraction)
	if cfg.ValidationFraction > 0 && valN < 1 && n > 1 {
		valN = 1
	}
	trainN := n - valN
	if trainN < 2 {
		return nil, fmt.Errorf("%w: %d rows, %d held out", ErrNoData, n, valN)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = trainN
	}
	batchSize = max(batchSize, 2)

	rng := rand.New(rand.NewSource(cfg.Seed))
	perm := rng.Perm(n)
	trainIdx, valIdx := perm[:trainN], perm[trainN:]
	val := gather(features, valIdx)

	a.RunID = uuid.NewString()
	a.SetTraining(true)
	defer a.SetTraining(false)

	opt := newAdam(a, cfg)
	h := &History{}
	best, stale := math.Inf(1), 0
	log.Info("training", zap.String("run", a.RunID), zap.Int("rows", trainN), zap.Int("validation", valN), zap.Ints("dims", a.Layout.Dims()))

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return h, err
		}
		rng.Shuffle(trainN, func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })

		total, seen := 0.0, 0
		for start := 0; start < trainN; start += batchSize {
			idx := trainIdx[start:min(start+batchSize, trainN)]
			// batch statistics need at least two rows
			if len(idx) < 2 {
				continue
			}
			loss, g := a.gradients(gather(features, idx))
			opt.step(a, g)
			a.updateRunningStats(g, len(idx))
			total += loss * float64(len(idx))
			seen += len(idx)
		}
		h.TrainLoss = append(h.TrainLoss, total/float64(seen))

		fields := []zap.Field{zap.Int("epoch", epoch+1), zap.Float64("train_loss", total/float64(seen))}
		if val != nil {
			vl := a.loss(val)
			h.ValidationLoss = append(h.ValidationLoss, vl)
			fields = append(fields, zap.Float64("val_loss", vl))

			if cfg.Patience > 0 {
				if vl < best-1e-6 {
					best, stale = vl, 0
				} else {
					stale++
				}
				if stale >= cfg.Patience {
					log.Info("early stopping", fields...)
					break
				}
			}
		}
		log.Info("epoch", fields...)
	}
	return h, nil
}

// Loss returns the mean squared reconstruction error of features in
// inference mode.
func (a *Autoencoder) Loss(features *mat.Dense) (float64, error) {
	if err := a.check(features); err != nil {
		return 0, err
	}
	return a.loss(features), nil
}

func (a *Autoencoder) loss(x *mat.Dense) float64 {
	out := a.forward(x, false, nil)
	var diff mat.Dense
	diff.Sub(out, x)
	r, c := x.Dims()
	f := mat.Norm(&diff, 2)
	return f * f / float64(r*c)
}

func gather(m *mat.Dense, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

// gradients holds the loss gradient of every parameter for one batch and
// the batch statistics seen by each normalisation layer.
type gradients struct {
	w, b        [][]float64
	gamma, beta [][]float64
	mean, vars  [][]float64
}

// gradients runs a training-mode forward and backward pass on x.
func (a *Autoencoder) gradients(x *mat.Dense) (float64, *gradients) {
	t := &trace{}
	out := a.forward(x, true, t)
	n, d := x.Dims()
	last := len(a.Layers) - 1

	g := &gradients{
		w:     make([][]float64, len(a.Layers)),
		b:     make([][]float64, len(a.Layers)),
		gamma: make([][]float64, len(a.Norms)),
		beta:  make([][]float64, len(a.Norms)),
		mean:  t.mean,
		vars:  t.variance,
	}

	grad := mat.NewDense(n, d, nil)
	grad.Sub(out, x)
	loss := 0.0
	for r := 0; r < n; r++ {
		for _, v := range grad.RawRowView(r) {
			loss += v * v
		}
	}
	loss /= float64(n * d)
	grad.Scale(2/float64(n*d), grad)

	for i := last; i >= 0; i-- {
		if i < last {
			grad = a.normBackward(i, grad, t, g)
		}
		l := &a.Layers[i]
		gw := mat.NewDense(l.Out, l.In, nil)
		gw.Mul(grad.T(), t.inputs[i])
		g.w[i] = gw.RawMatrix().Data
		g.b[i] = columnSums(grad)

		if i > 0 {
			prev := mat.NewDense(n, l.In, nil)
			prev.Mul(grad, l.weights())
			grad = prev
		}
	}
	return loss, g
}

// normBackward turns the gradient at the ReLU output of hidden layer i into
// the gradient at its pre-normalisation input.
func (a *Autoencoder) normBackward(i int, grad *mat.Dense, t *trace, g *gradients) *mat.Dense {
	bn := &a.Norms[i]
	n, dim := grad.Dims()
	xhat, out, invStd := t.xhat[i], t.outputs[i], t.invStd[i]

	dGamma := make([]float64, dim)
	dBeta := make([]float64, dim)
	sumDx := make([]float64, dim)
	sumDxXhat := make([]float64, dim)
	dxhat := mat.NewDense(n, dim, nil)
	for r := 0; r < n; r++ {
		for j := 0; j < dim; j++ {
			dy := grad.At(r, j)
			if out.At(r, j) <= 0 {
				dy = 0
			}
			xh := xhat.At(r, j)
			dGamma[j] += dy * xh
			dBeta[j] += dy
			dx := dy * bn.Gamma[j]
			dxhat.Set(r, j, dx)
			sumDx[j] += dx
			sumDxXhat[j] += dx * xh
		}
	}
	g.gamma[i], g.beta[i] = dGamma, dBeta

	nf := float64(n)
	dz := mat.NewDense(n, dim, nil)
	for r := 0; r < n; r++ {
		for j := 0; j < dim; j++ {
			dz.Set(r, j, invStd[j]/nf*(nf*dxhat.At(r, j)-sumDx[j]-xhat.At(r, j)*sumDxXhat[j]))
		}
	}
	return dz
}

func columnSums(m *mat.Dense) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = mat.Sum(m.ColView(j))
	}
	return out
}

// updateRunningStats folds the batch statistics into the running estimates
// with the unbiased variance.
func (a *Autoencoder) updateRunningStats(g *gradients, n int) {
	correction := float64(n) / float64(n-1)
	for i := range a.Norms {
		bn := &a.Norms[i]
		for j := range bn.RunningMean {
			bn.RunningMean[j] = (1-batchNormMomentum)*bn.RunningMean[j] + batchNormMomentum*g.mean[i][j]
			bn.RunningVar[j] = (1-batchNormMomentum)*bn.RunningVar[j] + batchNormMomentum*g.vars[i][j]*correction
		}
	}
}

type moments struct{ m, v []float64 }

func newMoments(n int) moments {
	return moments{m: make([]float64, n), v: make([]float64, n)}
}

// adam holds the first and second moment estimates of every parameter.
type adam struct {
	cfg         TrainConfig
	t           int
	w, b        []moments
	gamma, beta []moments
}

func newAdam(a *Autoencoder, cfg TrainConfig) *adam {
	o := &adam{cfg: cfg}
	for _, l := range a.Layers {
		o.w = append(o.w, newMoments(len(l.W)))
		o.b = append(o.b, newMoments(len(l.B)))
	}
	for _, bn := range a.Norms {
		o.gamma = append(o.gamma, newMoments(len(bn.Gamma)))
		o.beta = append(o.beta, newMoments(len(bn.Beta)))
	}
	return o
}

func (o *adam) step(a *Autoencoder, g *gradients) {
	o.t++
	for i := range a.Layers {
		o.update(a.Layers[i].W, g.w[i], o.w[i])
		o.update(a.Layers[i].B, g.b[i], o.b[i])
	}
	for i := range a.Norms {
		o.update(a.Norms[i].Gamma, g.gamma[i], o.gamma[i])
		o.update(a.Norms[i].Beta, g.beta[i], o.beta[i])
	}
}

// update applies one Adam step: params -= lr * m_hat / (sqrt(v_hat) + eps).
func (o *adam) update(params, grad []float64, s moments) {
	c := o.cfg
	bc1 := 1 - math.Pow(c.Beta1, float64(o.t))
	bc2 := 1 - math.Pow(c.Beta2, float64(o.t))
	for i := range params {
		s.m[i] = c.Beta1*s.m[i] + (1-c.Beta1)*grad[i]
		s.v[i] = c.Beta2*s.v[i] + (1-c.Beta2)*grad[i]*grad[i]
		params[i] -= c.LearningRate * (s.m[i] / bc1) / (math.Sqrt(s.v[i]/bc2) + c.Epsilon)
	}
}
