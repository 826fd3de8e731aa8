package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedFormat is returned by Load for extensions other than .wav and .flac.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Load decodes a WAV or FLAC file to a mono waveform at its native rate.
// Multi-channel input is averaged.
func Load(name string) (Waveform, error) {
	f, err := os.Open(name)
	if err != nil {
		return Waveform{}, err
	}
	defer f.Close()

	var w Waveform
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		w, err = DecodeWAV(f)
	case ".flac":
		w, err = DecodeFLAC(f)
	default:
		return Waveform{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return Waveform{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := w.Validate(); err != nil {
		return Waveform{}, fmt.Errorf("%s: %w", name, err)
	}
	return w, nil
}

// pcmScale undoes the full unsigned range beep's wav decoder divides
// signed 16 and 24 bit samples by, so that full scale decodes to 1.
func pcmScale(precision int) float64 {
	switch precision {
	case 2:
		return float64(1<<16-1) / float64(1<<15-1)
	case 3:
		return float64(1<<24-1) / float64(1<<23-1)
	}
	return 1
}

// DecodeWAV reads a WAV stream. beep hands out stereo frames; mono files
// arrive duplicated on both channels, so averaging is exact for them.
func DecodeWAV(r io.Reader) (Waveform, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return Waveform{}, err
	}
	defer stream.Close()

	scale := pcmScale(format.Precision)
	out := make([]float64, 0, stream.Len())
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			v := (buf[i][0] + buf[i][1]) / 2
			if format.NumChannels == 1 {
				v = buf[i][0]
			}
			out = append(out, clip(v*scale))
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return Waveform{}, err
	}
	return Waveform{Samples: out, SampleRate: int(format.SampleRate)}, nil
}

// DecodeFLAC reads a FLAC stream, scaling integer samples to [-1, 1).
func DecodeFLAC(r io.Reader) (Waveform, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Waveform{}, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	if channels == 0 {
		return Waveform{}, fmt.Errorf("%w: no channels", ErrInvalidAudio)
	}
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))

	var out []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Waveform{}, err
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i])
			}
			out = append(out, sum/float64(channels)/scale)
		}
	}
	return Waveform{Samples: out, SampleRate: int(stream.Info.SampleRate)}, nil
}

// SaveWAV writes w as 16-bit mono PCM. Samples are clipped to [-1, 1].
func SaveWAV(name string, w Waveform) error {
	if err := w.Validate(); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, w); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV writes w as 16-bit mono PCM to ws.
func EncodeWAV(ws io.WriteSeeker, w Waveform) error {
	format := beep.Format{
		SampleRate:  beep.SampleRate(w.SampleRate),
		NumChannels: 1,
		Precision:   2,
	}
	pos := 0
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(w.Samples) {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < len(w.Samples) {
			v := clip(w.Samples[pos])
			samples[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})
	return wav.Encode(ws, streamer, format)
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
