package main

import (
	"fmt"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/config"
	"github.com/neurlang/melae/internal/cli"
	"github.com/neurlang/melae/model"
	"github.com/neurlang/melae/score"
	"github.com/neurlang/melae/windowing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var modelPath, out string
	cmd := &cobra.Command{
		Use:           "towav <audio_file>",
		Short:         "Reconstruct audio from its mel features",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := cli.ConfigFlag(cmd)
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "pass the features through this trained autoencoder")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output WAV file (default <audio_file>.recon.wav)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Setup(*configPath, "towav")
		if err != nil {
			return err
		}
		if out == "" {
			out = args[0] + ".recon.wav"
		}
		if err := run(cfg, logger, args[0], modelPath, out); err != nil {
			cli.Fatal(logger, err)
		}
		_ = logger.Sync()
		return nil
	}

	if err := cmd.Execute(); err != nil {
		cli.Fatal(nil, err)
	}
}

func run(cfg *config.Config, logger *zap.Logger, filename, modelPath, out string) error {
	src := audio.FileSource{Path: filename, SampleRate: cfg.AcousticFeatures.SampleRate}
	w, err := src.Waveform()
	if err != nil {
		return err
	}

	m := cfg.Mel()
	spec, frames, err := m.Extract(w)
	if err != nil {
		return err
	}
	width := cfg.AcousticFeatures.NumberOfFramesToConcatenate
	n, features, err := windowing.Window(spec, width)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%s is shorter than one window of %d frames", filename, width)
	}

	if modelPath != "" {
		ae, err := model.LoadFile(modelPath)
		if err != nil {
			return err
		}
		res, err := (&score.Scorer{Logger: logger}).Score(ae, score.Batches(features, cfg.Training.BatchSize), []int{n})
		if err != nil {
			return err
		}
		logger.Info("reconstructed", zap.String("run", ae.RunID), zap.Float64("mse", res.GlobalMSE))
		features = res.Reconstruction
	}

	unrolled, err := windowing.Unwindow(features, m.Rows(), width)
	if err != nil {
		return err
	}
	recon, err := m.Invert(unrolled, frames)
	if err != nil {
		return err
	}
	if err := audio.SaveWAV(out, recon); err != nil {
		return err
	}
	logger.Info("wrote", zap.String("file", out), zap.Float64("seconds", recon.Duration()))
	return nil
}
