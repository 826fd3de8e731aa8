// Package cli holds the plumbing shared by the melae commands: loading the
// configuration, building the logger and expanding input paths.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConfigFlag registers the --config flag on cmd and returns its value.
func ConfigFlag(cmd *cobra.Command) *string {
	var path string
	cmd.Flags().StringVarP(&path, "config", "c", "", "hyper-parameter file (default: built-in settings, or "+config.DefaultFile+" if present)")
	return &path
}

// Setup loads the configuration and builds a logger tagged with tool. An
// empty path falls back to config.DefaultFile in the working directory
// when it exists.
func Setup(path, tool string) (*config.Config, *zap.Logger, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logger(map[string]interface{}{"tool": tool})
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Debug("loaded config", zap.String("path", path))
	}
	return cfg, logger, nil
}

// Paths expands every argument: directories become their sorted audio
// files, files are kept as given.
func Paths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		files, err := audio.List(arg)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no audio files in %s", arg)
		}
		out = append(out, files...)
	}
	return out, nil
}

// Sources expands args and wraps them as audio sources at the configured
// sample rate.
func Sources(cfg *config.Config, args []string) ([]audio.Source, error) {
	paths, err := Paths(args)
	if err != nil {
		return nil, err
	}
	return audio.Sources(paths, cfg.AcousticFeatures.SampleRate), nil
}

// Label reports whether a clip name marks it as anomalous, following the
// DCASE convention of "anomaly" or "normal" in the file name. ok is false
// when the name carries neither.
func Label(name string) (anomalous, ok bool) {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "anomaly"):
		return true, true
	case strings.Contains(base, "normal"):
		return false, true
	}
	return false, false
}

// Fatal logs err and exits with status 1.
func Fatal(logger *zap.Logger, err error) {
	if logger == nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	} else {
		logger.Error("failed", zap.Error(err))
		_ = logger.Sync()
	}
	os.Exit(1)
}
