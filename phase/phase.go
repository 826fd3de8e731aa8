package phase

import "github.com/r9y9/gossp/stft"
import "github.com/mjibson/go-dsp/fft"
import "errors"
import "fmt"
import "math"
import "math/cmplx"

// Phase represents the STFT configuration shared by analysis and synthesis.
type Phase struct {
	Window int // frame length and FFT size in samples
	Hop    int // frame shift in samples

	// Iterations is the number of Griffin-Lim refinements.
	Iterations int
	// Momentum accelerates Griffin-Lim; 0 gives the classic algorithm.
	Momentum float64
}

// ErrBadFrame is returned for non-positive window or hop sizes.
var ErrBadFrame = errors.New("phase: window and hop must be positive")

// NewPhase creates a new Phase instance with default values.
func NewPhase(window, hop int) *Phase {
	return &Phase{
		Window:     window,
		Hop:        hop,
		Iterations: 32,
		Momentum:   0.99,
	}
}

func (p *Phase) check() error {
	if p.Window <= 0 || p.Hop <= 0 {
		return ErrBadFrame
	}
	return nil
}

// stft returns the gossp framer with a periodic Hann window in place of its
// symmetric default, matching librosa's analysis window.
func (p *Phase) stft() *stft.STFT {
	s := stft.New(p.Hop, p.Window)
	s.Window = Hann(p.Window)
	return s
}

// Hann returns the periodic Hann window of n samples,
// 0.5 - 0.5*cos(2*pi*i/n).
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Bins returns the number of non-negative frequency bins, Window/2+1.
func (p *Phase) Bins() int {
	return p.Window/2 + 1
}

// NumFrames returns the centred frame count for a signal of n samples.
func (p *Phase) NumFrames(n int) int {
	return 1 + (n+2*(p.Window/2)-p.Window)/p.Hop
}

// Spectrum returns the complex spectrum of every centred frame. Each frame
// holds all Window bins.
func (p *Phase) Spectrum(buf []float64) ([][]complex128, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.stft().STFT(pad(buf, p.Window/2)), nil
}

// Power returns |X|^2 for the non-negative bins of every frame, [frames][Bins()].
func (p *Phase) Power(buf []float64) ([][]float64, error) {
	spectrum, err := p.Spectrum(buf)
	if err != nil {
		return nil, err
	}
	bins := p.Bins()
	out := make([][]float64, len(spectrum))
	for i, frame := range spectrum {
		row := make([]float64, bins)
		for j := 0; j < bins; j++ {
			re, im := real(frame[j]), imag(frame[j])
			row[j] = re*re + im*im
		}
		out[i] = row
	}
	return out, nil
}

// Synthesize overlap-adds the inverse transform of every frame and returns
// length samples with the centring padding removed.
func (p *Phase) Synthesize(spectrum [][]complex128, length int) ([]float64, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if len(spectrum) == 0 {
		return make([]float64, length), nil
	}
	window := p.stft().Window
	numFrames := len(spectrum)
	total := p.Window + (numFrames-1)*p.Hop
	signal := make([]float64, total)
	windowSum := make([]float64, total)

	for i := 0; i < numFrames; i++ {
		buf := fft.IFFT(spectrum[i])
		off := i * p.Hop
		for j := 0; j < p.Window; j++ {
			signal[off+j] += real(buf[j]) * window[j]
			windowSum[off+j] += window[j] * window[j]
		}
	}

	const tiny = 1e-10
	for i := range signal {
		if windowSum[i] > tiny {
			signal[i] /= windowSum[i]
		}
	}

	out := make([]float64, length)
	start := p.Window / 2
	if start < total {
		copy(out, signal[start:])
	}
	return out, nil
}

// GriffinLim estimates a signal of length samples whose STFT magnitude
// approximates magnitude ([frames][Bins()]). The initial phase is zero, so
// the result is deterministic.
func (p *Phase) GriffinLim(magnitude [][]float64, length int) ([]float64, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	bins := p.Bins()
	for i, row := range magnitude {
		if len(row) != bins {
			return nil, fmt.Errorf("phase: magnitude frame %d has %d bins, want %d", i, len(row), bins)
		}
	}

	angles := make([][]complex128, len(magnitude))
	for i := range angles {
		angles[i] = make([]complex128, bins)
		for j := range angles[i] {
			angles[i][j] = 1
		}
	}

	var rebuilt [][]complex128
	mix := p.Momentum / (1 + p.Momentum)
	for iter := 0; iter < p.Iterations; iter++ {
		previous := rebuilt

		signal, err := p.Synthesize(p.full(magnitude, angles), length)
		if err != nil {
			return nil, err
		}
		rebuilt, err = p.Spectrum(signal)
		if err != nil {
			return nil, err
		}

		for i := range angles {
			if i >= len(rebuilt) {
				break
			}
			for j := 0; j < bins; j++ {
				a := rebuilt[i][j]
				if previous != nil && i < len(previous) {
					a -= complex(mix, 0) * previous[i][j]
				}
				angles[i][j] = a / complex(cmplx.Abs(a)+1e-16, 0)
			}
		}
	}

	return p.Synthesize(p.full(magnitude, angles), length)
}

// full mirrors the non-negative bins into a Hermitian spectrum of Window bins.
func (p *Phase) full(magnitude [][]float64, angles [][]complex128) [][]complex128 {
	out := make([][]complex128, len(magnitude))
	for i, row := range magnitude {
		frame := make([]complex128, p.Window)
		for j, m := range row {
			v := complex(m, 0) * angles[i][j]
			frame[j] = v
			if j > 0 && p.Window-j > p.Window/2 {
				frame[p.Window-j] = cmplx.Conj(v)
			}
		}
		out[i] = frame
	}
	return out
}

// pad reflects n samples onto each end of buf, falling back to zeros when
// buf is too short to reflect.
func pad(buf []float64, n int) []float64 {
	out := make([]float64, len(buf)+2*n)
	copy(out[n:], buf)
	if len(buf) <= n {
		return out
	}
	for i := 0; i < n; i++ {
		out[n-1-i] = buf[i+1]
		out[n+len(buf)+i] = buf[len(buf)-2-i]
	}
	return out
}
