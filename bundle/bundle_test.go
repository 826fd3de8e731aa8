package bundle

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/cache"
	"github.com/neurlang/melae/mel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func block(rows, cols int, base float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, base+float64(i*cols+j))
		}
	}
	return m
}

func TestBundleUnbundle(t *testing.T) {
	clips := []Clip{
		{Name: "a.wav", Features: block(3, 4, 0)},
		{Name: "short.wav", Features: &mat.Dense{}},
		{Name: "b.wav", Features: block(2, 4, 100)},
		{Name: "c.wav", Features: block(1, 4, 200)},
	}
	d, err := Bundle(clips)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav", "short.wav", "b.wav", "c.wav"}, d.Filenames)
	assert.Equal(t, []int{3, 0, 2, 1}, d.ClipLengths)
	assert.Equal(t, 6, d.Rows())

	sum := 0
	for _, n := range d.ClipLengths {
		sum += n
	}
	assert.Equal(t, d.Rows(), sum)

	parts, err := Unbundle(d.Features, d.ClipLengths)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	for i, c := range clips {
		if c.Features.IsEmpty() {
			assert.True(t, parts[i].IsEmpty())
			continue
		}
		assert.True(t, mat.Equal(c.Features, parts[i]), c.Name)
	}

	named, err := d.Clips()
	require.NoError(t, err)
	assert.Equal(t, "b.wav", named[2].Name)
}

func TestUnbundleCopies(t *testing.T) {
	m := block(4, 2, 0)
	parts, err := Unbundle(m, []int{2, 2})
	require.NoError(t, err)
	m.Set(0, 0, -1)
	assert.Equal(t, 0.0, parts[0].At(0, 0))
}

func TestUnbundleLengthMismatch(t *testing.T) {
	_, err := Unbundle(block(5, 2, 0), []int{3, 3})
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = Unbundle(block(5, 2, 0), []int{6, -1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = Unbundle(&mat.Dense{}, []int{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	parts, err := Unbundle(&mat.Dense{}, []int{0, 0})
	require.NoError(t, err)
	assert.Len(t, parts, 2)
}

func TestBundleShapeMismatch(t *testing.T) {
	_, err := Bundle([]Clip{
		{Name: "a", Features: block(1, 4, 0)},
		{Name: "b", Features: block(1, 5, 0)},
	})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBundleEmpty(t *testing.T) {
	d, err := Bundle([]Clip{{Name: "a", Features: &mat.Dense{}}})
	require.NoError(t, err)
	assert.Zero(t, d.Rows())
	assert.Equal(t, []int{0}, d.ClipLengths)

	d, err = Bundle(nil)
	require.NoError(t, err)
	assert.Zero(t, d.Rows())
	assert.Empty(t, d.Filenames)
}

func tone(name string, freq float64, seconds float64) audio.MemorySource {
	const rate = 8000
	s := make([]float64, int(seconds*rate))
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return audio.MemorySource{Label: name, Clip: audio.Waveform{Samples: s, SampleRate: rate}}
}

func testLoader() *Loader {
	m := mel.NewMel()
	m.NumMels = 16
	m.FrameSizeSeconds = 0.032
	return &Loader{Mel: m, FramesPerWindow: 5}
}

func testSources() []audio.Source {
	return []audio.Source{
		tone("a.wav", 300, 0.5),
		tone("b.wav", 600, 0.25),
		tone("c.wav", 900, 0.75),
		tone("d.wav", 1200, 0.1),
		tone("e.wav", 1500, 0.4),
	}
}

func TestLoaderMatchesDirectPipeline(t *testing.T) {
	l := testLoader()
	srcs := testSources()
	d, err := l.Load(context.Background(), srcs)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.wav", "b.wav", "c.wav", "d.wav", "e.wav"}, d.Filenames)
	clips, err := d.Clips()
	require.NoError(t, err)
	for i, src := range srcs {
		want, err := l.Features(src)
		require.NoError(t, err)
		if want.IsEmpty() {
			assert.Zero(t, d.ClipLengths[i])
			continue
		}
		r, _ := want.Dims()
		assert.Equal(t, r, d.ClipLengths[i])
		assert.True(t, mat.Equal(want, clips[i].Features))
	}
	// 0.1 s at hop 128 gives 7 frames: one window
	assert.Equal(t, 1, d.ClipLengths[3])
}

func TestLoaderShuffleKeepsAlignment(t *testing.T) {
	l := testLoader()
	l.Shuffle = true
	l.Seed = 7
	srcs := testSources()

	d, err := l.Load(context.Background(), srcs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.wav", "b.wav", "c.wav", "d.wav", "e.wav"}, d.Filenames)

	byName := map[string]audio.Source{}
	for _, s := range srcs {
		byName[s.Name()] = s
	}
	clips, err := d.Clips()
	require.NoError(t, err)
	for _, c := range clips {
		want, err := l.Features(byName[c.Name])
		require.NoError(t, err)
		assert.True(t, mat.Equal(want, c.Features), c.Name)
	}

	again, err := l.Load(context.Background(), srcs)
	require.NoError(t, err)
	assert.Equal(t, d.Filenames, again.Filenames)
	assert.Equal(t, "a.wav", srcs[0].Name(), "input order is untouched")
}

func TestLoaderPercentage(t *testing.T) {
	l := testLoader()
	l.Percentage = 0.5
	d, err := l.Load(context.Background(), testSources())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav", "b.wav"}, d.Filenames)

	l.Percentage = 1.5
	_, err = l.Load(context.Background(), testSources())
	assert.Error(t, err)
}

type failing struct{}

func (failing) Name() string                      { return "broken.wav" }
func (failing) Waveform() (audio.Waveform, error) { return audio.Waveform{}, errors.New("disk on fire") }

func TestLoaderFailFast(t *testing.T) {
	l := testLoader()
	srcs := append(testSources()[:1], failing{}, tone("z.wav", 100, 0.5))
	_, err := l.Load(context.Background(), srcs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.wav")

	_, err = l.Load(context.Background(), []audio.Source{audio.MemorySource{Label: "empty.wav"}})
	assert.ErrorIs(t, err, audio.ErrInvalidAudio)
}

func TestLoaderCache(t *testing.T) {
	ctx := context.Background()
	store, err := cache.Open(cache.Options{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	core, logs := observer.New(zap.InfoLevel)
	l := testLoader()
	l.Cache = store
	l.Logger = zap.New(core)

	first, err := l.Load(ctx, testSources())
	require.NoError(t, err)
	assert.Equal(t, 5, logs.FilterMessage("processing").Len())

	cached, err := store.Get(ctx, l.Fingerprint(), "c.wav")
	require.NoError(t, err)
	clips, err := first.Clips()
	require.NoError(t, err)
	assert.True(t, mat.Equal(clips[2].Features, cached))

	// a poisoned entry proves the second load reads from the cache
	require.NoError(t, store.Put(ctx, l.Fingerprint(), "a.wav", mat.NewDense(1, 80, nil)))
	second, err := l.Load(ctx, testSources())
	require.NoError(t, err)
	assert.Equal(t, 1, second.ClipLengths[0])

	other := testLoader()
	other.FramesPerWindow = 4
	assert.NotEqual(t, l.Fingerprint(), other.Fingerprint())
}

func TestLoaderCacheSameBaseName(t *testing.T) {
	ctx := context.Background()
	store, err := cache.Open(cache.Options{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	dir := t.TempDir()
	var srcs []audio.Source
	for _, c := range []struct {
		machine string
		freq    float64
	}{{"fan", 300}, {"pump", 1200}} {
		sub := filepath.Join(dir, c.machine, "train")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		name := filepath.Join(sub, "normal_0001.wav")
		require.NoError(t, audio.SaveWAV(name, tone(name, c.freq, 0.5).Clip))
		srcs = append(srcs, audio.FileSource{Path: name})
	}

	l := testLoader()
	l.Cache = store
	d, err := l.Load(ctx, srcs)
	require.NoError(t, err)
	require.Len(t, d.Filenames, 2)
	assert.NotEqual(t, d.Filenames[0], d.Filenames[1])

	clips, err := d.Clips()
	require.NoError(t, err)
	fan, err := l.Features(srcs[0])
	require.NoError(t, err)
	pump, err := l.Features(srcs[1])
	require.NoError(t, err)
	assert.False(t, mat.Equal(fan, pump))
	assert.True(t, mat.Equal(fan, clips[0].Features))
	assert.True(t, mat.Equal(pump, clips[1].Features))

	// a second load is served from the cache and keeps the clips apart
	again, err := l.Load(ctx, srcs)
	require.NoError(t, err)
	cached, err := again.Clips()
	require.NoError(t, err)
	assert.True(t, mat.Equal(pump, cached[1].Features))
	assert.False(t, mat.Equal(cached[0].Features, cached[1].Features))
}

func TestLoaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testLoader().Load(ctx, testSources())
	assert.ErrorIs(t, err, context.Canceled)
}
