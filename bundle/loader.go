package bundle

import (
	"context"
	"errors"
	"fmt"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/cache"
	"github.com/neurlang/melae/internal/logging"
	"github.com/neurlang/melae/mel"
	"github.com/neurlang/melae/windowing"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Loader turns audio sources into a Dataset: every source is extracted with
// Mel, windowed and bundled in order. The first failure aborts the load.
type Loader struct {
	Mel             *mel.Mel
	FramesPerWindow int

	// Shuffle permutes the sources once, before anything is extracted.
	Shuffle bool
	Seed    uint64

	// Percentage keeps the first int(Percentage*n) sources after shuffling.
	// Zero keeps all of them.
	Percentage float64

	// Cache, when set, is consulted before extraction and filled after it.
	// Entries are keyed by audio.Key, the absolute path for files.
	Cache *cache.Store
	// CacheTag is mixed into the cache fingerprint for settings outside Mel,
	// such as the resampling rate of the sources.
	CacheTag string

	Logger *zap.Logger
}

// Fingerprint identifies the feature settings of the loader in the cache.
func (l *Loader) Fingerprint() string {
	m := l.Mel
	return cache.Fingerprint(fmt.Sprintf("mels=%d frame=%g fmin=%g fmax=%g topdb=%g deltas=%t w=%d tag=%s",
		m.NumMels, m.FrameSizeSeconds, m.MelFmin, m.MelFmax, m.TopDB, m.Deltas, l.FramesPerWindow, l.CacheTag))
}

// Select applies Shuffle and Percentage to sources without touching the
// input slice.
func (l *Loader) Select(sources []audio.Source) ([]audio.Source, error) {
	if l.Percentage < 0 || l.Percentage > 1 {
		return nil, fmt.Errorf("bundle: percentage %g outside [0, 1]", l.Percentage)
	}
	out := append([]audio.Source(nil), sources...)
	if l.Shuffle {
		rng := rand.New(rand.NewSource(l.Seed))
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	if l.Percentage > 0 {
		out = out[:int(l.Percentage*float64(len(out)))]
	}
	return out, nil
}

// Load extracts, windows and bundles the selected sources.
func (l *Loader) Load(ctx context.Context, sources []audio.Source) (*Dataset, error) {
	if l.Mel == nil {
		return nil, errors.New("bundle: Loader.Mel is nil")
	}
	selected, err := l.Select(sources)
	if err != nil {
		return nil, err
	}
	log := logging.OrNop(l.Logger)
	fp := ""
	if l.Cache != nil {
		fp = l.Fingerprint()
	}

	clips := make([]Clip, len(selected))
	for i, src := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Info("processing", zap.String("file", src.Name()), zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(selected))))

		features, err := l.features(ctx, fp, src)
		if err != nil {
			return nil, fmt.Errorf("bundle: %s: %w", src.Name(), err)
		}
		clips[i] = Clip{Name: src.Name(), Features: features}
	}
	return Bundle(clips)
}

// Features extracts and windows one source, bypassing the cache.
func (l *Loader) Features(src audio.Source) (*mat.Dense, error) {
	w, err := src.Waveform()
	if err != nil {
		return nil, err
	}
	spec, _, err := l.Mel.Extract(w)
	if err != nil {
		return nil, err
	}
	_, features, err := windowing.Window(spec, l.FramesPerWindow)
	return features, err
}

func (l *Loader) features(ctx context.Context, fp string, src audio.Source) (*mat.Dense, error) {
	if l.Cache == nil {
		return l.Features(src)
	}
	key := audio.Key(src)
	m, err := l.Cache.Get(ctx, fp, key)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	m, err = l.Features(src)
	if err != nil {
		return nil, err
	}
	if err := l.Cache.Put(ctx, fp, key, m); err != nil {
		return nil, err
	}
	return m, nil
}
