package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts w to rate. The input is returned as a copy when the
// rates already match.
func Resample(w Waveform, rate int) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	if rate <= 0 {
		return Waveform{}, fmt.Errorf("%w: target sample rate %d", ErrInvalidAudio, rate)
	}
	if rate == w.SampleRate {
		out := make([]float64, len(w.Samples))
		copy(out, w.Samples)
		return Waveform{Samples: out, SampleRate: rate}, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Waveform{}, fmt.Errorf("create resampler: %w", err)
	}
	out, err := r.Process(w.Samples)
	if err != nil {
		return Waveform{}, fmt.Errorf("resample: %w", err)
	}
	// the filter holds back its tail until flushed
	tail, err := r.Flush()
	if err != nil {
		return Waveform{}, fmt.Errorf("resample: flush: %w", err)
	}
	out = append(out, tail...)
	return Waveform{Samples: out, SampleRate: rate}, nil
}
