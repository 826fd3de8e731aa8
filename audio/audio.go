package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidAudio is returned for an empty waveform or a non-positive sample rate.
var ErrInvalidAudio = errors.New("invalid audio")

// Waveform is a mono clip of amplitude samples. Samples must not be mutated
// once the waveform has been handed to the pipeline.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Validate reports ErrInvalidAudio for an empty clip or a bad sample rate.
func (w Waveform) Validate() error {
	if len(w.Samples) == 0 {
		return fmt.Errorf("%w: empty waveform", ErrInvalidAudio)
	}
	if w.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, w.SampleRate)
	}
	return nil
}

// Duration returns the clip length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Source supplies one named clip to the pipeline.
type Source interface {
	Name() string
	Waveform() (Waveform, error)
}

// Keyed is implemented by sources that have an identity more precise than
// their display name.
type Keyed interface {
	Key() string
}

// Key identifies src for caching: its Key when it has one, its name
// otherwise.
func Key(src Source) string {
	if k, ok := src.(Keyed); ok {
		return k.Key()
	}
	return src.Name()
}

// FileSource decodes a clip from disk on demand.
type FileSource struct {
	Path string
	// SampleRate, when non-zero, resamples the decoded clip.
	SampleRate int
}

// Name returns the cleaned path of the file.
func (f FileSource) Name() string {
	return filepath.Clean(f.Path)
}

// Key returns the absolute path of the file, which stays unique when
// datasets reuse base names across machine directories.
func (f FileSource) Key() string {
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return filepath.Clean(f.Path)
	}
	return abs
}

// Waveform loads the file.
func (f FileSource) Waveform() (Waveform, error) {
	w, err := Load(f.Path)
	if err != nil {
		return Waveform{}, err
	}
	if f.SampleRate > 0 && f.SampleRate != w.SampleRate {
		return Resample(w, f.SampleRate)
	}
	return w, nil
}

// MemorySource is an already decoded clip.
type MemorySource struct {
	Label string
	Clip  Waveform
}

func (m MemorySource) Name() string               { return m.Label }
func (m MemorySource) Waveform() (Waveform, error) { return m.Clip, nil }

// DefaultExtensions are the file types List picks up when none are given.
var DefaultExtensions = []string{".wav", ".flac"}

// List returns the audio files directly inside dir, sorted by name.
func List(dir string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Sources wraps paths as FileSources resampled to sampleRate (0 keeps the native rate).
func Sources(paths []string, sampleRate int) []Source {
	out := make([]Source, len(paths))
	for i, p := range paths {
		out[i] = FileSource{Path: p, SampleRate: sampleRate}
	}
	return out
}
