package score

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultQuantile is the gamma quantile used as the anomaly threshold.
const DefaultQuantile = 0.9

var (
	// ErrEmptyErrorSet is returned when there are no finite errors to fit.
	ErrEmptyErrorSet = errors.New("score: no finite errors to fit")
	// ErrFitConvergence is returned when the gamma fit fails or the data
	// cannot support one.
	ErrFitConvergence = errors.New("score: gamma fit did not converge")
)

// Gamma is a three parameter gamma distribution: a standard gamma of the
// given Shape, stretched by Scale and shifted by Loc.
type Gamma struct {
	Shape float64
	Loc   float64
	Scale float64
}

func (g Gamma) standard() distuv.Gamma {
	return distuv.Gamma{Alpha: g.Shape, Beta: 1}
}

// Threshold returns the q-quantile of g.
func (g Gamma) Threshold(q float64) float64 {
	return g.Loc + g.Scale*g.standard().Quantile(q)
}

// CDF returns P(X <= x).
func (g Gamma) CDF(x float64) float64 {
	if x <= g.Loc {
		return 0
	}
	return g.standard().CDF((x - g.Loc) / g.Scale)
}

// PDF returns the density of g at x.
func (g Gamma) PDF(x float64) float64 {
	if x <= g.Loc {
		return 0
	}
	return g.standard().Prob((x-g.Loc)/g.Scale) / g.Scale
}

// Curve samples the density at n evenly spaced points in [0, upper], the
// form used for plotting a fitted density over an error histogram.
func (g Gamma) Curve(upper float64, n int) (xs, ys []float64) {
	if n < 2 {
		return nil, nil
	}
	xs = floats.Span(make([]float64, n), 0, upper)
	ys = make([]float64, n)
	for i, x := range xs {
		ys[i] = g.PDF(x)
	}
	return xs, ys
}

func (g Gamma) valid() bool {
	for _, v := range []float64{g.Shape, g.Loc, g.Scale} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return g.Shape > 0 && g.Scale > 0
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// negLogLik is the gamma negative log likelihood of x. Values at or below
// loc make it infinite.
func negLogLik(x []float64, g Gamma) float64 {
	lg, _ := math.Lgamma(g.Shape)
	n := float64(len(x))
	sum := n*lg + n*g.Shape*math.Log(g.Scale)
	for _, v := range x {
		d := v - g.Loc
		if d <= 0 {
			return math.Inf(1)
		}
		sum += d/g.Scale - (g.Shape-1)*math.Log(d)
	}
	return sum
}

func sample(values []float64) ([]float64, error) {
	x := finite(values)
	if len(x) == 0 {
		return nil, ErrEmptyErrorSet
	}
	if len(x) < 2 || floats.Min(x) == floats.Max(x) {
		return nil, fmt.Errorf("%w: %d values with no spread", ErrFitConvergence, len(x))
	}
	return x, nil
}

func minimize(f func([]float64) float64, start []float64) ([]float64, error) {
	settings := &optimize.Settings{
		MajorIterations: 20000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f}, start, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitConvergence, err)
	}
	if res.Status.Early() {
		return nil, fmt.Errorf("%w: %v", ErrFitConvergence, res.Status)
	}
	return res.X, nil
}

// FitGamma fits shape, location and scale to the finite values of errs by
// maximum likelihood, starting from method of moments estimates. NaN and
// infinite values are ignored.
func FitGamma(errs []float64) (Gamma, error) {
	x, err := sample(errs)
	if err != nil {
		return Gamma{}, err
	}
	mean, std := stat.MeanStdDev(x, nil)
	lo := floats.Min(x)

	// moments: skew = 2/sqrt(shape); fall back to a location just below the
	// minimum when the sample is not right skewed
	start := Gamma{Loc: lo - 0.1*std}
	if skew := stat.Skew(x, nil); skew > 1e-3 {
		start.Loc = mean - 2*std/skew
	}
	if start.Loc >= lo {
		start.Loc = lo - 0.1*std
	}
	start.Shape = (mean - start.Loc) * (mean - start.Loc) / (std * std)
	start.Scale = std * std / (mean - start.Loc)

	// optimise in log space: shape, scale > 0 and loc < min(x)
	decode := func(p []float64) Gamma {
		return Gamma{Shape: math.Exp(p[0]), Loc: lo - math.Exp(p[1]), Scale: math.Exp(p[2])}
	}
	p, err := minimize(func(p []float64) float64 {
		return negLogLik(x, decode(p))
	}, []float64{math.Log(start.Shape), math.Log(lo - start.Loc), math.Log(start.Scale)})
	if err != nil {
		return Gamma{}, err
	}
	g := decode(p)
	if !g.valid() {
		return Gamma{}, fmt.Errorf("%w: %+v", ErrFitConvergence, g)
	}
	return g, nil
}

// FitGammaFixedLoc fits shape and scale with the location held at loc.
// Every finite value must lie above loc.
func FitGammaFixedLoc(errs []float64, loc float64) (Gamma, error) {
	x, err := sample(errs)
	if err != nil {
		return Gamma{}, err
	}
	if lo := floats.Min(x); lo <= loc {
		return Gamma{}, fmt.Errorf("%w: value %g not above location %g", ErrFitConvergence, lo, loc)
	}
	mean, std := stat.MeanStdDev(x, nil)
	shape := (mean - loc) * (mean - loc) / (std * std)
	scale := std * std / (mean - loc)

	decode := func(p []float64) Gamma {
		return Gamma{Shape: math.Exp(p[0]), Loc: loc, Scale: math.Exp(p[1])}
	}
	p, err := minimize(func(p []float64) float64 {
		return negLogLik(x, decode(p))
	}, []float64{math.Log(shape), math.Log(scale)})
	if err != nil {
		return Gamma{}, err
	}
	g := decode(p)
	if !g.valid() {
		return Gamma{}, fmt.Errorf("%w: %+v", ErrFitConvergence, g)
	}
	return g, nil
}
