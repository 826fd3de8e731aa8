package mel

import (
	"errors"
	"fmt"
	"math"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/phase"
	"gonum.org/v1/gonum/mat"
)

// Mel represents the configuration for generating mel spectrograms.
type Mel struct {
	NumMels          int
	FrameSizeSeconds float64
	MelFmin          float64
	MelFmax          float64 // 0 means half the sample rate
	TopDB            float64 // dynamic range below the peak; <= 0 disables clipping

	// Deltas appends temporal delta rows, doubling the row count.
	Deltas bool

	GriffinLimIterations int
	NNLSIterations       int
}

// NewMel creates a new Mel instance with default values.
func NewMel() *Mel {
	return &Mel{
		NumMels:              128,
		FrameSizeSeconds:     0.064,
		TopDB:                80,
		GriffinLimIterations: 32,
		NNLSIterations:       50,
	}
}

// ErrInvalidAudio is audio.ErrInvalidAudio, repeated here for callers that
// only import mel.
var ErrInvalidAudio = audio.ErrInvalidAudio

// ErrMelBins is returned by Invert when the spectrogram row count does not
// match the configured mel bands.
var ErrMelBins = errors.New("mel: spectrogram row count does not match NumMels")

// Frames is the analysis geometry of one clip: STFT frame and hop size in
// samples and the sample rate they were derived from.
type Frames struct {
	Size       int
	Hop        int
	SampleRate int
}

// Frames derives the frame geometry for a clip sampled at sampleRate.
func (m *Mel) Frames(sampleRate int) (Frames, error) {
	if sampleRate <= 0 {
		return Frames{}, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, sampleRate)
	}
	size := int(m.FrameSizeSeconds * float64(sampleRate))
	f := Frames{Size: size, Hop: size / 2, SampleRate: sampleRate}
	return f, f.validate()
}

func (f Frames) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, f.SampleRate)
	}
	if f.Size <= 0 || f.Hop <= 0 {
		return fmt.Errorf("%w: frame %d hop %d samples", ErrInvalidAudio, f.Size, f.Hop)
	}
	return nil
}

// Rows returns the number of spectrogram rows Extract produces.
func (m *Mel) Rows() int {
	if m.Deltas {
		return 2 * m.NumMels
	}
	return m.NumMels
}

func (m *Mel) fmax(sampleRate int) float64 {
	if m.MelFmax > 0 {
		return m.MelFmax
	}
	return float64(sampleRate) / 2
}

// Extract computes the decibel mel spectrogram [Rows() x frames] of w.
// It is deterministic.
func (m *Mel) Extract(w audio.Waveform) (*mat.Dense, Frames, error) {
	if err := w.Validate(); err != nil {
		return nil, Frames{}, err
	}
	if m.NumMels <= 0 {
		return nil, Frames{}, fmt.Errorf("mel: NumMels %d", m.NumMels)
	}
	f, err := m.Frames(w.SampleRate)
	if err != nil {
		return nil, Frames{}, err
	}

	power, err := phase.NewPhase(f.Size, f.Hop).Power(w.Samples)
	if err != nil {
		return nil, Frames{}, err
	}
	bins := f.Size/2 + 1
	spectrum := mat.NewDense(len(power), bins, nil)
	for t, row := range power {
		spectrum.SetRow(t, row)
	}

	basis := filterbank(m.NumMels, f.Size, f.SampleRate, m.MelFmin, m.fmax(f.SampleRate))
	var spec mat.Dense
	spec.Mul(basis, spectrum.T())

	powerToDB(&spec, m.TopDB)

	if m.Deltas {
		return appendDeltas(&spec), f, nil
	}
	return &spec, f, nil
}

// Invert synthesizes a waveform from a decibel mel spectrogram using the
// frame geometry from Extract. Decibels are mapped back with a reference of
// 1.0, so the result matches the original only up to loudness and phase.
func (m *Mel) Invert(db *mat.Dense, f Frames) (audio.Waveform, error) {
	if err := f.validate(); err != nil {
		return audio.Waveform{}, err
	}
	rows, frames := db.Dims()
	if rows != m.NumMels && rows != m.Rows() {
		return audio.Waveform{}, fmt.Errorf("%w: got %d rows, want %d", ErrMelBins, rows, m.NumMels)
	}
	if frames < 2 {
		return audio.Waveform{}, fmt.Errorf("%w: %d frames cannot be inverted", ErrInvalidAudio, frames)
	}

	power := mat.NewDense(m.NumMels, frames, nil)
	power.Apply(func(i, j int, _ float64) float64 {
		return math.Pow(10, db.At(i, j)/10)
	}, power)

	basis := filterbank(m.NumMels, f.Size, f.SampleRate, m.MelFmin, m.fmax(f.SampleRate))
	linear := nnls(basis, power, m.NNLSIterations)

	bins, _ := linear.Dims()
	magnitude := make([][]float64, frames)
	for t := range magnitude {
		row := make([]float64, bins)
		for k := range row {
			row[k] = math.Sqrt(linear.At(k, t))
		}
		magnitude[t] = row
	}

	p := phase.NewPhase(f.Size, f.Hop)
	p.Iterations = m.GriffinLimIterations
	samples, err := p.GriffinLim(magnitude, f.Hop*(frames-1))
	if err != nil {
		return audio.Waveform{}, err
	}
	return audio.Waveform{Samples: samples, SampleRate: f.SampleRate}, nil
}
