// Package config loads the hyper-parameter file shared by the melae tools
// and hands every component the part of it that component needs.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/neurlang/melae/bundle"
	"github.com/neurlang/melae/cache"
	"github.com/neurlang/melae/internal/logging"
	"github.com/neurlang/melae/mel"
	"github.com/neurlang/melae/model"
	"go.uber.org/zap"
)

// DefaultFile is the conventional name of the configuration file.
const DefaultFile = "hyper_parameters.yaml"

// Config is the whole hyper-parameter file.
type Config struct {
	AcousticFeatures AcousticFeatures `yaml:"acoustic_features"`
	Training         Training         `yaml:"training"`
	Model            Model            `yaml:"model"`
	Threshold        Threshold        `yaml:"threshold"`
	Cache            Cache            `yaml:"cache"`
	Log              Log              `yaml:"log"`
}

// AcousticFeatures controls spectrogram extraction and windowing.
type AcousticFeatures struct {
	FrameSizeSeconds            float64 `yaml:"frame_size_seconds"`
	NumberOfMels                int     `yaml:"number_of_mels"`
	NumberOfFramesToConcatenate int     `yaml:"number_of_frames_to_concatenate"`
	Deltas                      bool    `yaml:"deltas"`
	GriffinLimIterations        int     `yaml:"griffin_lim_iterations"`

	// SampleRate resamples every clip on load; 0 keeps the file's rate.
	SampleRate int `yaml:"sample_rate"`
}

// Training controls dataset loading and the optimiser.
type Training struct {
	BatchSize          int     `yaml:"batch_size"`
	Shuffle            bool    `yaml:"shuffle"`
	Seed               uint64  `yaml:"seed"`
	Percentage         float64 `yaml:"percentage"`
	Epochs             int     `yaml:"epochs"`
	LearningRate       float64 `yaml:"learning_rate"`
	ValidationFraction float64 `yaml:"validation_fraction"`
	Patience           int     `yaml:"patience"`
}

// Model holds the autoencoder layer widths.
type Model struct {
	HiddenDims    []int `yaml:"hidden_dims"`
	BottleneckDim int   `yaml:"bottleneck_dim"`
}

// Threshold selects the gamma quantile used as anomaly threshold.
type Threshold struct {
	Quantile float64 `yaml:"quantile"`
}

// Cache configures the feature cache; an empty Dir disables it.
type Cache struct {
	Dir       string `yaml:"dir"`
	Precision string `yaml:"precision"`
}

// Log configures the zap logger of the tools.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AcousticFeatures: AcousticFeatures{
			FrameSizeSeconds:            0.064,
			NumberOfMels:                128,
			NumberOfFramesToConcatenate: 5,
			GriffinLimIterations:        32,
		},
		Training: Training{
			BatchSize:          256,
			Shuffle:            true,
			Seed:               1,
			Percentage:         1,
			Epochs:             20,
			LearningRate:       0.001,
			ValidationFraction: 0.1,
		},
		Model: Model{
			HiddenDims:    []int{128, 128, 128, 128},
			BottleneckDim: 8,
		},
		Threshold: Threshold{Quantile: 0.9},
		Cache:     Cache{Precision: string(cache.Float64)},
		Log:       Log{Level: "info"},
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports every out of range setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}
	a := c.AcousticFeatures
	check(a.FrameSizeSeconds > 0, "acoustic_features.frame_size_seconds must be positive, got %g", a.FrameSizeSeconds)
	check(a.NumberOfMels > 0, "acoustic_features.number_of_mels must be positive, got %d", a.NumberOfMels)
	check(a.NumberOfFramesToConcatenate > 0, "acoustic_features.number_of_frames_to_concatenate must be positive, got %d", a.NumberOfFramesToConcatenate)
	check(a.GriffinLimIterations >= 0, "acoustic_features.griffin_lim_iterations must not be negative")
	check(a.SampleRate >= 0, "acoustic_features.sample_rate must not be negative")

	t := c.Training
	check(t.BatchSize > 0, "training.batch_size must be positive, got %d", t.BatchSize)
	check(t.Percentage > 0 && t.Percentage <= 1, "training.percentage must be in (0, 1], got %g", t.Percentage)
	check(t.Epochs >= 0, "training.epochs must not be negative")
	check(t.LearningRate > 0, "training.learning_rate must be positive, got %g", t.LearningRate)
	check(t.ValidationFraction >= 0 && t.ValidationFraction < 1, "training.validation_fraction must be in [0, 1), got %g", t.ValidationFraction)
	check(t.Patience >= 0, "training.patience must not be negative")

	check(c.Model.BottleneckDim > 0, "model.bottleneck_dim must be positive, got %d", c.Model.BottleneckDim)
	for _, d := range c.Model.HiddenDims {
		check(d > 0, "model.hidden_dims must be positive, got %v", c.Model.HiddenDims)
	}
	check(c.Threshold.Quantile > 0 && c.Threshold.Quantile < 1, "threshold.quantile must be in (0, 1), got %g", c.Threshold.Quantile)
	_, err := cache.ParsePrecision(c.Cache.Precision)
	check(err == nil, "cache.precision: %v", err)
	return errors.Join(errs...)
}

// Mel returns the extractor settings.
func (c *Config) Mel() *mel.Mel {
	m := mel.NewMel()
	m.NumMels = c.AcousticFeatures.NumberOfMels
	m.FrameSizeSeconds = c.AcousticFeatures.FrameSizeSeconds
	m.Deltas = c.AcousticFeatures.Deltas
	m.GriffinLimIterations = c.AcousticFeatures.GriffinLimIterations
	return m
}

// InputDim is the width of one windowed feature row.
func (c *Config) InputDim() int {
	return c.Mel().Rows() * c.AcousticFeatures.NumberOfFramesToConcatenate
}

// TrainConfig returns the optimiser settings.
func (c *Config) TrainConfig() model.TrainConfig {
	tc := model.DefaultTrainConfig()
	tc.LearningRate = c.Training.LearningRate
	tc.BatchSize = c.Training.BatchSize
	tc.Epochs = c.Training.Epochs
	tc.ValidationFraction = c.Training.ValidationFraction
	tc.Patience = c.Training.Patience
	tc.Seed = c.Training.Seed
	return tc
}

// ModelLayout returns the autoencoder layout for rows of inputDim values.
func (c *Config) ModelLayout(inputDim int) model.Layout {
	return model.Layout{
		InputDim:   inputDim,
		Hidden:     append([]int(nil), c.Model.HiddenDims...),
		Bottleneck: c.Model.BottleneckDim,
	}
}

// Loader returns a dataset loader. store may be nil.
func (c *Config) Loader(store *cache.Store, logger *zap.Logger) *bundle.Loader {
	return &bundle.Loader{
		Mel:             c.Mel(),
		FramesPerWindow: c.AcousticFeatures.NumberOfFramesToConcatenate,
		Shuffle:         c.Training.Shuffle,
		Seed:            c.Training.Seed,
		Percentage:      c.Training.Percentage,
		Cache:           store,
		CacheTag:        fmt.Sprintf("rate=%d", c.AcousticFeatures.SampleRate),
		Logger:          logger,
	}
}

// OpenCache opens the configured feature cache, or returns nil when no
// directory is set.
func (c *Config) OpenCache(logger *zap.Logger) (*cache.Store, error) {
	if c.Cache.Dir == "" {
		return nil, nil
	}
	return cache.Open(cache.Options{
		Dir:       c.Cache.Dir,
		Precision: cache.Precision(c.Cache.Precision),
		Logger:    logger,
	})
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger(fields map[string]interface{}) (*zap.Logger, error) {
	return logging.New(
		logging.WithLevel(c.Log.Level),
		logging.WithFields(fields),
		logging.WithDevelopment(c.Log.Development),
	)
}
