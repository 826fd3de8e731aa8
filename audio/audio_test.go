package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Waveform{SampleRate: 16000}.Validate(), ErrInvalidAudio)
	assert.ErrorIs(t, Waveform{Samples: []float64{0}, SampleRate: 0}.Validate(), ErrInvalidAudio)
	assert.ErrorIs(t, Waveform{Samples: []float64{0}, SampleRate: -1}.Validate(), ErrInvalidAudio)
	assert.NoError(t, Waveform{Samples: []float64{0}, SampleRate: 8000}.Validate())
}

func TestDuration(t *testing.T) {
	w := Waveform{Samples: make([]float64, 8000), SampleRate: 16000}
	assert.InDelta(t, 0.5, w.Duration(), 1e-12)
	assert.Zero(t, Waveform{Samples: []float64{1}}.Duration())
}

func TestSaveLoadWAV(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "tone.wav")
	in := Waveform{Samples: sine(440, 16000, 4000), SampleRate: 16000}

	require.NoError(t, SaveWAV(name, in))
	out, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, 16000, out.SampleRate)
	require.Len(t, out.Samples, len(in.Samples))
	for i := range in.Samples {
		if math.Abs(in.Samples[i]-out.Samples[i]) > 2.0/32768 {
			t.Fatalf("sample %d: got %f want %f", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestSaveWAVClips(t *testing.T) {
	name := filepath.Join(t.TempDir(), "loud.wav")
	require.NoError(t, SaveWAV(name, Waveform{Samples: []float64{2, -2, 0.25}, SampleRate: 8000}))
	out, err := Load(name)
	require.NoError(t, err)
	require.Len(t, out.Samples, 3)
	assert.InDelta(t, 1, out.Samples[0], 1e-3)
	assert.InDelta(t, -1, out.Samples[1], 1e-3)
	assert.InDelta(t, 0.25, out.Samples[2], 1e-3)
}

func TestDecodeWAVFullScale(t *testing.T) {
	assert.InDelta(t, 2.0, pcmScale(2), 1e-4)
	assert.InDelta(t, 2.0, pcmScale(3), 1e-6)
	assert.Equal(t, 1.0, pcmScale(1))

	name := filepath.Join(t.TempDir(), "half.wav")
	in := Waveform{Samples: sine(1000, 8000, 800), SampleRate: 8000}
	require.NoError(t, SaveWAV(name, in))
	out, err := Load(name)
	require.NoError(t, err)
	peak := 0.0
	for _, v := range out.Samples {
		peak = math.Max(peak, math.Abs(v))
	}
	// sine() peaks at 0.5; a decoder that halves the level would give 0.25
	assert.InDelta(t, 0.5, peak, 1e-3)
}

func TestSaveWAVRejectsEmpty(t *testing.T) {
	err := SaveWAV(filepath.Join(t.TempDir(), "x.wav"), Waveform{SampleRate: 8000})
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestLoadUnsupported(t *testing.T) {
	name := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	_, err := Load(name)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.wav", "a.WAV", "c.flac", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.wav"), 0o755))

	files, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.WAV"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "c.flac"),
	}, files)

	wavs, err := List(dir, ".flac")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.flac")}, wavs)
}

func TestSources(t *testing.T) {
	src := Sources([]string{"/data/x/one.wav", "/data/x/two.flac"}, 16000)
	require.Len(t, src, 2)
	assert.Equal(t, filepath.Clean("/data/x/one.wav"), src[0].Name())
	assert.Equal(t, filepath.Clean("/data/x/two.flac"), src[1].Name())

	m := MemorySource{Label: "mem", Clip: Waveform{Samples: []float64{1}, SampleRate: 1}}
	w, err := m.Waveform()
	require.NoError(t, err)
	assert.Equal(t, "mem", m.Name())
	assert.Equal(t, 1, w.SampleRate)
}

func TestSourceKeys(t *testing.T) {
	fan := FileSource{Path: filepath.Join("fan", "train", "normal_0001.wav")}
	pump := FileSource{Path: filepath.Join("pump", "train", "..", "train", "normal_0001.wav")}
	assert.NotEqual(t, Key(fan), Key(pump))
	assert.True(t, filepath.IsAbs(Key(fan)))
	assert.Equal(t, filepath.Join("pump", "train", "normal_0001.wav"), pump.Name())

	m := MemorySource{Label: "mem.wav"}
	assert.Equal(t, "mem.wav", Key(m))
}

func TestResampleSameRateCopies(t *testing.T) {
	in := Waveform{Samples: []float64{0.1, 0.2, 0.3}, SampleRate: 16000}
	out, err := Resample(in, 16000)
	require.NoError(t, err)
	assert.Equal(t, in.Samples, out.Samples)
	out.Samples[0] = 9
	assert.Equal(t, 0.1, in.Samples[0])
}

func TestResampleHalvesRate(t *testing.T) {
	in := Waveform{Samples: sine(440, 16000, 16000), SampleRate: 16000}
	out, err := Resample(in, 8000)
	require.NoError(t, err)
	assert.Equal(t, 8000, out.SampleRate)
	// one second in, one second out, tail included
	assert.InDelta(t, 8000, len(out.Samples), 40)

	// the tone keeps its level away from the edges
	mid := out.Samples[2000:6000]
	sum := 0.0
	for _, v := range mid {
		sum += v * v
	}
	assert.InDelta(t, 0.5/math.Sqrt2, math.Sqrt(sum/float64(len(mid))), 0.02)
}

func TestResampleInvalid(t *testing.T) {
	_, err := Resample(Waveform{Samples: []float64{1}, SampleRate: 16000}, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio)
	_, err = Resample(Waveform{SampleRate: 16000}, 8000)
	assert.ErrorIs(t, err, ErrInvalidAudio)
}
