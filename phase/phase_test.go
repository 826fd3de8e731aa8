package phase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func tone(bin, window, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(window))
	}
	return out
}

func TestNumFramesMatchesSpectrum(t *testing.T) {
	p := NewPhase(64, 32)
	for _, n := range []int{1, 31, 32, 33, 64, 100, 1000} {
		spec, err := p.Spectrum(make([]float64, n))
		require.NoError(t, err)
		assert.Equal(t, p.NumFrames(n), len(spec), "n=%d", n)
		assert.Equal(t, 1+n/32, len(spec), "n=%d", n)
		for _, frame := range spec {
			require.Len(t, frame, 64)
		}
	}
}

func TestHannIsPeriodic(t *testing.T) {
	w := Hann(8)
	require.Len(t, w, 8)
	assert.Zero(t, w[0])
	assert.InDelta(t, 1, w[4], 1e-12)
	for i := 1; i < 8; i++ {
		assert.InDelta(t, w[i], w[8-i], 1e-12, "i=%d", i)
	}
}

func TestSpectrumUsesPeriodicWindow(t *testing.T) {
	x := make([]float64, 1000)
	for i := range x {
		x[i] = 1
	}
	p := NewPhase(64, 32)
	spec, err := p.Spectrum(x)
	require.NoError(t, err)
	// the DC bin of an interior frame is the window sum: n/2 when periodic,
	// (n-1)/2 for the symmetric window
	assert.InDelta(t, 32, real(spec[10][0]), 1e-9)
	assert.InDelta(t, 0, imag(spec[10][0]), 1e-9)
}

func TestSynthesizeInvertsSpectrum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := make([]float64, 1000)
	for i := range x {
		x[i] = rng.Float64()*2 - 1
	}
	p := NewPhase(64, 32)
	spec, err := p.Spectrum(x)
	require.NoError(t, err)
	y, err := p.Synthesize(spec, len(x))
	require.NoError(t, err)
	require.Len(t, y, len(x))
	for i := range x {
		if math.Abs(x[i]-y[i]) > 1e-8 {
			t.Fatalf("sample %d: got %g want %g", i, y[i], x[i])
		}
	}
}

func TestPowerPeaksAtToneBin(t *testing.T) {
	p := NewPhase(128, 64)
	power, err := p.Power(tone(10, 128, 2048))
	require.NoError(t, err)
	require.NotEmpty(t, power)
	mid := power[len(power)/2]
	require.Len(t, mid, p.Bins())
	best := 0
	for j := range mid {
		if mid[j] > mid[best] {
			best = j
		}
	}
	assert.Equal(t, 10, best)
}

func TestGriffinLimRecoversMagnitude(t *testing.T) {
	p := NewPhase(128, 64)
	x := tone(6, 128, 4096)
	power, err := p.Power(x)
	require.NoError(t, err)
	mag := make([][]float64, len(power))
	for i, row := range power {
		mag[i] = make([]float64, len(row))
		for j, v := range row {
			mag[i][j] = math.Sqrt(v)
		}
	}

	length := p.Hop * (len(mag) - 1)
	y, err := p.GriffinLim(mag, length)
	require.NoError(t, err)
	require.Len(t, y, length)

	again, err := p.GriffinLim(mag, length)
	require.NoError(t, err)
	assert.Equal(t, y, again, "zero-phase start must be deterministic")

	rebuilt, err := p.Power(y)
	require.NoError(t, err)
	require.Equal(t, len(mag), len(rebuilt))
	var diff, ref float64
	for i := 1; i < len(mag)-1; i++ {
		for j := range mag[i] {
			d := math.Sqrt(rebuilt[i][j]) - mag[i][j]
			diff += d * d
			ref += mag[i][j] * mag[i][j]
		}
	}
	assert.Less(t, math.Sqrt(diff/ref), 0.5)
}

func TestGriffinLimRejectsWrongBins(t *testing.T) {
	p := NewPhase(16, 8)
	_, err := p.GriffinLim([][]float64{make([]float64, 3)}, 8)
	assert.Error(t, err)
}

func TestBadFrame(t *testing.T) {
	_, err := NewPhase(0, 4).Spectrum([]float64{1, 2})
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = NewPhase(8, 0).Synthesize(nil, 4)
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = NewPhase(8, -1).GriffinLim(nil, 4)
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestPad(t *testing.T) {
	assert.Equal(t, []float64{3, 2, 1, 2, 3, 4, 3, 2}, pad([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{0, 0, 1, 0, 0}, pad([]float64{1}, 2))
}
