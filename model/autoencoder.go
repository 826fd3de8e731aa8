package model

import (
	"fmt"
	"math"

	"github.com/neurlang/melae/windowing"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Layout describes the layer widths of an autoencoder. The decoder mirrors
// Hidden in reverse.
type Layout struct {
	InputDim   int
	Hidden     []int
	Bottleneck int
}

// Dims returns the width of every activation from input to output.
func (l Layout) Dims() []int {
	dims := []int{l.InputDim}
	dims = append(dims, l.Hidden...)
	dims = append(dims, l.Bottleneck)
	for i := len(l.Hidden) - 1; i >= 0; i-- {
		dims = append(dims, l.Hidden[i])
	}
	return append(dims, l.InputDim)
}

// Validate rejects non-positive widths.
func (l Layout) Validate() error {
	for _, d := range l.Dims() {
		if d <= 0 {
			return fmt.Errorf("model: invalid layout %v", l.Dims())
		}
	}
	return nil
}

// Layer is a fully connected layer. W is [Out x In] row-major.
type Layer struct {
	In  int       `msgpack:"in"`
	Out int       `msgpack:"out"`
	W   []float64 `msgpack:"w"`
	B   []float64 `msgpack:"b"`
}

func (l *Layer) weights() *mat.Dense {
	return mat.NewDense(l.Out, l.In, l.W)
}

// BatchNorm holds the parameters of one batch normalisation layer.
type BatchNorm struct {
	Gamma       []float64 `msgpack:"gamma"`
	Beta        []float64 `msgpack:"beta"`
	RunningMean []float64 `msgpack:"running_mean"`
	RunningVar  []float64 `msgpack:"running_var"`
}

const (
	batchNormEps      = 1e-5
	batchNormMomentum = 0.1
)

// Calibration is the error distribution fitted on the training set.
type Calibration struct {
	Shape     float64 `msgpack:"shape"`
	Loc       float64 `msgpack:"loc"`
	Scale     float64 `msgpack:"scale"`
	Quantile  float64 `msgpack:"quantile"`
	Threshold float64 `msgpack:"threshold"`
}

// Autoencoder is a symmetric dense autoencoder. Every layer except the last
// is followed by batch normalisation and ReLU.
type Autoencoder struct {
	Layout Layout
	Layers []Layer
	Norms  []BatchNorm

	// RunID identifies the training run that produced the weights.
	RunID string
	// Features fingerprints the feature settings the model was trained on.
	Features string
	// Calibration is zero until a threshold has been fitted.
	Calibration Calibration

	training bool
}

// New creates an autoencoder with He-initialised weights drawn from seed.
func New(layout Layout, seed uint64) (*Autoencoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	dims := layout.Dims()
	a := &Autoencoder{Layout: layout}
	for i := 0; i+1 < len(dims); i++ {
		in, out := dims[i], dims[i+1]
		l := Layer{In: in, Out: out, W: make([]float64, in*out), B: make([]float64, out)}
		scale := math.Sqrt(2.0 / float64(in))
		for j := range l.W {
			l.W[j] = rng.NormFloat64() * scale
		}
		a.Layers = append(a.Layers, l)
		if i+2 < len(dims) {
			a.Norms = append(a.Norms, newBatchNorm(out))
		}
	}
	return a, nil
}

func newBatchNorm(dim int) BatchNorm {
	bn := BatchNorm{
		Gamma:       make([]float64, dim),
		Beta:        make([]float64, dim),
		RunningMean: make([]float64, dim),
		RunningVar:  make([]float64, dim),
	}
	for j := 0; j < dim; j++ {
		bn.Gamma[j] = 1
		bn.RunningVar[j] = 1
	}
	return bn
}

// SetTraining selects batch statistics (true) or running statistics (false)
// for batch normalisation.
func (a *Autoencoder) SetTraining(training bool) { a.training = training }

// Training reports the current mode.
func (a *Autoencoder) Training() bool { return a.training }

// Infer reconstructs every row of batch.
func (a *Autoencoder) Infer(batch *mat.Dense) (*mat.Dense, error) {
	if err := a.check(batch); err != nil {
		return nil, err
	}
	return a.forward(batch, a.training, nil), nil
}

func (a *Autoencoder) check(batch *mat.Dense) error {
	if batch == nil || batch.IsEmpty() {
		return fmt.Errorf("%w: empty batch", windowing.ErrShapeMismatch)
	}
	if _, c := batch.Dims(); c != a.Layout.InputDim {
		return fmt.Errorf("%w: batch width %d, model input %d", windowing.ErrShapeMismatch, c, a.Layout.InputDim)
	}
	return nil
}

// trace keeps what backpropagation needs from one forward pass: the input
// of every layer and, for hidden layers, the normalised pre-activations,
// the inverse deviations, the post-ReLU outputs and the batch statistics.
type trace struct {
	inputs   []*mat.Dense
	xhat     []*mat.Dense
	invStd   [][]float64
	outputs  []*mat.Dense
	mean     [][]float64
	variance [][]float64
}

// forward runs the network. With training set, batch normalisation uses the
// statistics of x. When t is non-nil the intermediates are recorded.
func (a *Autoencoder) forward(x *mat.Dense, training bool, t *trace) *mat.Dense {
	rows, _ := x.Dims()
	cur := x
	for i := range a.Layers {
		l := &a.Layers[i]
		if t != nil {
			t.inputs = append(t.inputs, cur)
		}
		z := mat.NewDense(rows, l.Out, nil)
		z.Mul(cur, l.weights().T())
		for r := 0; r < rows; r++ {
			row := z.RawRowView(r)
			for j := range row {
				row[j] += l.B[j]
			}
		}
		if i == len(a.Layers)-1 {
			return z
		}

		bn := &a.Norms[i]
		mean, variance := bn.RunningMean, bn.RunningVar
		if training {
			mean, variance = columnStats(z)
		}
		invStd := make([]float64, l.Out)
		for j := range invStd {
			invStd[j] = 1 / math.Sqrt(variance[j]+batchNormEps)
		}
		var xhat *mat.Dense
		if t != nil {
			xhat = mat.NewDense(rows, l.Out, nil)
		}
		for r := 0; r < rows; r++ {
			row := z.RawRowView(r)
			for j, v := range row {
				xh := (v - mean[j]) * invStd[j]
				if xhat != nil {
					xhat.Set(r, j, xh)
				}
				row[j] = math.Max(0, bn.Gamma[j]*xh+bn.Beta[j])
			}
		}
		if t != nil {
			t.xhat = append(t.xhat, xhat)
			t.invStd = append(t.invStd, invStd)
			t.outputs = append(t.outputs, z)
			t.mean = append(t.mean, mean)
			t.variance = append(t.variance, variance)
		}
		cur = z
	}
	return cur
}

// columnStats returns the per-column mean and biased variance of m.
func columnStats(m *mat.Dense) (mean, variance []float64) {
	rows, cols := m.Dims()
	mean = make([]float64, cols)
	variance = make([]float64, cols)
	for r := 0; r < rows; r++ {
		for j, v := range m.RawRowView(r) {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(rows)
	}
	for r := 0; r < rows; r++ {
		for j, v := range m.RawRowView(r) {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	for j := range variance {
		variance[j] /= float64(rows)
	}
	return mean, variance
}
