package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

func draw(g Gamma, n int, seed uint64) []float64 {
	d := distuv.Gamma{Alpha: g.Shape, Beta: 1, Src: rand.NewSource(seed)}
	out := make([]float64, n)
	for i := range out {
		out[i] = g.Loc + g.Scale*d.Rand()
	}
	return out
}

func TestGammaClosedForms(t *testing.T) {
	// shape 1 is exponential
	g := Gamma{Shape: 1, Loc: 0, Scale: 2}
	assert.InDelta(t, -2*math.Log(0.1), g.Threshold(DefaultQuantile), 1e-9)
	assert.InDelta(t, 0.5*math.Exp(-1), g.PDF(2), 1e-12)
	assert.InDelta(t, 1-math.Exp(-1), g.CDF(2), 1e-12)
	assert.Zero(t, g.PDF(-1))
	assert.Zero(t, g.CDF(0))

	shifted := Gamma{Shape: 1, Loc: 3, Scale: 2}
	assert.InDelta(t, 3-2*math.Log(0.1), shifted.Threshold(0.9), 1e-9)

	xs, ys := g.Curve(10, 5)
	assert.Equal(t, []float64{0, 2.5, 5, 7.5, 10}, xs)
	assert.Len(t, ys, 5)
	assert.Zero(t, ys[0])
}

func TestFitGammaRecoversParameters(t *testing.T) {
	truth := Gamma{Shape: 4, Loc: 0.5, Scale: 0.1}
	train := draw(truth, 5000, 1)
	// non-finite values are ignored
	train = append(train, math.NaN(), math.Inf(1))

	g, err := FitGamma(train)
	require.NoError(t, err)
	assert.InEpsilon(t, truth.Shape, g.Shape, 0.35)
	assert.InEpsilon(t, truth.Scale, g.Scale, 0.4)
	assert.InDelta(t, truth.Loc, g.Loc, 0.1)
	// shape and scale trade off against each other; the variance pins them
	assert.InEpsilon(t, truth.Shape*truth.Scale*truth.Scale, g.Shape*g.Scale*g.Scale, 0.1)
	assert.InEpsilon(t, truth.Threshold(0.9), g.Threshold(0.9), 0.03)

	held := draw(truth, 5000, 2)
	flagged := 0
	for _, f := range Predict(held, g.Threshold(DefaultQuantile)) {
		if f {
			flagged++
		}
	}
	assert.InDelta(t, 0.1, float64(flagged)/float64(len(held)), 0.025)
}

func TestFitGammaFixedLoc(t *testing.T) {
	truth := Gamma{Shape: 2, Loc: 0, Scale: 3}
	g, err := FitGammaFixedLoc(draw(truth, 5000, 3), 0)
	require.NoError(t, err)
	assert.Zero(t, g.Loc)
	assert.InEpsilon(t, 2, g.Shape, 0.1)
	assert.InEpsilon(t, 3, g.Scale, 0.1)

	_, err = FitGammaFixedLoc([]float64{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrFitConvergence)
}

func TestFitGammaErrors(t *testing.T) {
	_, err := FitGamma(nil)
	assert.ErrorIs(t, err, ErrEmptyErrorSet)
	_, err = FitGamma([]float64{math.NaN(), math.Inf(-1)})
	assert.ErrorIs(t, err, ErrEmptyErrorSet)
	_, err = FitGamma([]float64{0.3, 0.3, 0.3})
	assert.ErrorIs(t, err, ErrFitConvergence)
	_, err = FitGamma([]float64{0.3})
	assert.ErrorIs(t, err, ErrFitConvergence)
}
