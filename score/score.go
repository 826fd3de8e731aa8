package score

import (
	"fmt"
	"math"

	"github.com/neurlang/melae/bundle"
	"github.com/neurlang/melae/internal/logging"
	"github.com/neurlang/melae/windowing"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Model reconstructs feature rows.
type Model interface {
	// Infer returns the reconstruction of every row of batch.
	Infer(batch *mat.Dense) (*mat.Dense, error)
	// SetTraining switches between training and inference behaviour.
	SetTraining(training bool)
}

// Batches splits features into consecutive blocks of at most size rows.
// The blocks are views of features.
func Batches(features *mat.Dense, size int) []*mat.Dense {
	if features == nil || features.IsEmpty() {
		return nil
	}
	rows, cols := features.Dims()
	if size <= 0 {
		size = rows
	}
	var out []*mat.Dense
	for at := 0; at < rows; at += size {
		end := min(at+size, rows)
		out = append(out, features.Slice(at, end, 0, cols).(*mat.Dense))
	}
	return out
}

// Result holds the reconstruction errors of one scoring run.
type Result struct {
	// PerClip is the mean squared error of each clip, NaN for clips
	// without rows.
	PerClip []float64
	// PerRow is the mean squared error of every dataset row.
	PerRow []float64
	// GlobalMSE is the summed squared error over all elements divided by
	// the element count.
	GlobalMSE float64
	// Reconstruction is the model output for all rows in order.
	Reconstruction *mat.Dense
}

// Clips splits the reconstruction back into clips.
func (r *Result) Clips(clipLengths []int) ([]*mat.Dense, error) {
	return bundle.Unbundle(r.Reconstruction, clipLengths)
}

// Scorer runs a model over batches and aggregates its errors.
type Scorer struct {
	Logger *zap.Logger
}

// Score switches m to inference mode, reconstructs every batch in order and
// measures the error against the inputs, split by clipLengths.
func (s *Scorer) Score(m Model, batches []*mat.Dense, clipLengths []int) (*Result, error) {
	log := logging.OrNop(s.Logger)
	m.SetTraining(false)

	inputs := make([]bundle.Clip, 0, len(batches))
	outputs := make([]bundle.Clip, 0, len(batches))
	for i, b := range batches {
		if b == nil || b.IsEmpty() {
			continue
		}
		out, err := m.Infer(b)
		if err != nil {
			return nil, fmt.Errorf("score: batch %d: %w", i, err)
		}
		br, bc := b.Dims()
		or, oc := out.Dims()
		if br != or || bc != oc {
			return nil, fmt.Errorf("%w: batch %d is %dx%d, reconstruction %dx%d", windowing.ErrShapeMismatch, i, br, bc, or, oc)
		}
		inputs = append(inputs, bundle.Clip{Features: b})
		outputs = append(outputs, bundle.Clip{Features: out})
	}
	in, err := bundle.Bundle(inputs)
	if err != nil {
		return nil, err
	}
	out, err := bundle.Bundle(outputs)
	if err != nil {
		return nil, err
	}

	rows := in.Rows()
	res := &Result{
		PerRow:         make([]float64, rows),
		Reconstruction: out.Features,
		GlobalMSE:      math.NaN(),
	}
	total, count := 0.0, 0
	for i := 0; i < rows; i++ {
		a, b := in.Features.RawRowView(i), out.Features.RawRowView(i)
		sq := 0.0
		for j := range a {
			d := a[j] - b[j]
			sq += d * d
		}
		res.PerRow[i] = sq / float64(len(a))
		total += sq
		count += len(a)
	}
	if count > 0 {
		res.GlobalMSE = total / float64(count)
	}

	// rows share a width, so a clip's mean is the mean of its row means;
	// the per-row errors are split with the same bookkeeping as the features
	perRow := &mat.Dense{}
	if rows > 0 {
		perRow = mat.NewDense(rows, 1, res.PerRow)
	}
	parts, err := bundle.Unbundle(perRow, clipLengths)
	if err != nil {
		return nil, err
	}
	res.PerClip = make([]float64, len(parts))
	for i, p := range parts {
		if p.IsEmpty() {
			res.PerClip[i] = math.NaN()
			continue
		}
		res.PerClip[i] = stat.Mean(p.RawMatrix().Data, nil)
	}

	log.Debug("scored", zap.Int("rows", rows), zap.Int("clips", len(clipLengths)), zap.Float64("mse", res.GlobalMSE))
	return res, nil
}

// Predict flags every value strictly above threshold. NaN is never flagged.
func Predict(values []float64, threshold float64) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v > threshold
	}
	return out
}
