package mel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// filterbank returns the Slaney-normalised triangular filters [mels x nfft/2+1].
func filterbank(mels, nfft, sampleRate int, fmin, fmax float64) *mat.Dense {
	bins := nfft/2 + 1

	lo, hi := hzToMel(fmin), hzToMel(fmax)
	edges := make([]float64, mels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(mels+1))
	}

	basis := mat.NewDense(mels, bins, nil)
	for i := 0; i < mels; i++ {
		left, center, right := edges[i], edges[i+1], edges[i+2]
		norm := 2 / (right - left)
		for k := 0; k < bins; k++ {
			freq := float64(k) * float64(sampleRate) / float64(nfft)
			lower := (freq - left) / (center - left)
			upper := (right - freq) / (right - center)
			w := math.Min(lower, upper)
			if w > 0 {
				basis.Set(i, k, w*norm)
			}
		}
	}
	return basis
}

const amin = 1e-10

// powerToDB converts power to decibels relative to the maximum value in
// place. The result peaks at 0 dB and is floored at -topDB when topDB > 0.
func powerToDB(spec *mat.Dense, topDB float64) {
	ref := mat.Max(spec)
	refDB := 10 * math.Log10(math.Max(ref, amin))
	spec.Apply(func(_, _ int, v float64) float64 {
		return 10*math.Log10(math.Max(v, amin)) - refDB
	}, spec)
	if topDB <= 0 {
		return
	}
	floor := mat.Max(spec) - topDB
	spec.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, floor)
	}, spec)
}

// nnls solves min ||basis*x - target|| for x >= 0 column by column with
// multiplicative updates, returning x [bins x frames].
func nnls(basis, target *mat.Dense, iterations int) *mat.Dense {
	var numer, gram mat.Dense
	numer.Mul(basis.T(), target)
	gram.Mul(basis.T(), basis)

	x := mat.DenseCopyOf(&numer)
	x.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, x)

	const eps = 1e-12
	var denom mat.Dense
	for it := 0; it < iterations; it++ {
		denom.Mul(&gram, x)
		x.Apply(func(i, j int, v float64) float64 {
			n := numer.At(i, j)
			if n <= 0 || v <= 0 {
				return 0
			}
			return v * n / (denom.At(i, j) + eps)
		}, x)
	}
	return x
}

// appendDeltas stacks regression deltas (window 2) of every row below spec.
func appendDeltas(spec *mat.Dense) *mat.Dense {
	rows, frames := spec.Dims()
	out := mat.NewDense(2*rows, frames, nil)
	out.Slice(0, rows, 0, frames).(*mat.Dense).Copy(spec)

	const n = 2
	denom := 0.0
	for k := 1; k <= n; k++ {
		denom += float64(k * k)
	}
	denom *= 2

	for r := 0; r < rows; r++ {
		for t := 0; t < frames; t++ {
			num := 0.0
			for k := 1; k <= n; k++ {
				tp, tn := t+k, t-k
				if tp >= frames {
					tp = frames - 1
				}
				if tn < 0 {
					tn = 0
				}
				num += float64(k) * (spec.At(r, tp) - spec.At(r, tn))
			}
			out.Set(rows+r, t, num/denom)
		}
	}
	return out
}
