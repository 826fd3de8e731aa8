package main

import (
	"fmt"
	"math"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/config"
	"github.com/neurlang/melae/internal/cli"
	"github.com/neurlang/melae/phase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

func main() {
	var out string
	var iterations int
	cmd := &cobra.Command{
		Use:           "tophase <audio_file>",
		Short:         "Rebuild audio from its STFT magnitude alone",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := cli.ConfigFlag(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output WAV file (default <audio_file>.gl.wav)")
	cmd.Flags().IntVarP(&iterations, "iterations", "i", 0, "Griffin-Lim iterations (default from config)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Setup(*configPath, "tophase")
		if err != nil {
			return err
		}
		if out == "" {
			out = args[0] + ".gl.wav"
		}
		if iterations <= 0 {
			iterations = cfg.AcousticFeatures.GriffinLimIterations
		}
		if err := run(cfg, logger, args[0], out, iterations); err != nil {
			cli.Fatal(logger, err)
		}
		_ = logger.Sync()
		return nil
	}

	if err := cmd.Execute(); err != nil {
		cli.Fatal(nil, err)
	}
}

func run(cfg *config.Config, logger *zap.Logger, filename, out string, iterations int) error {
	src := audio.FileSource{Path: filename, SampleRate: cfg.AcousticFeatures.SampleRate}
	w, err := src.Waveform()
	if err != nil {
		return err
	}
	frames, err := cfg.Mel().Frames(w.SampleRate)
	if err != nil {
		return err
	}

	p := phase.NewPhase(frames.Size, frames.Hop)
	p.Iterations = iterations
	magnitude, err := magnitudes(p, w.Samples)
	if err != nil {
		return err
	}
	logger.Debug("griffin-lim",
		zap.Int("window", p.Window),
		zap.Int("hop", p.Hop),
		zap.Int("frames", len(magnitude)),
		zap.Int("iterations", p.Iterations),
	)

	rebuilt, err := p.GriffinLim(magnitude, len(w.Samples))
	if err != nil {
		return err
	}
	estimate, err := magnitudes(p, rebuilt)
	if err != nil {
		return err
	}
	sc := convergence(magnitude, estimate)

	if err := audio.SaveWAV(out, audio.Waveform{Samples: rebuilt, SampleRate: w.SampleRate}); err != nil {
		return err
	}
	logger.Info("wrote", zap.String("file", out), zap.Float64("spectral_convergence", sc))
	fmt.Printf("%s: %d frames of %d bins, spectral convergence %.4f after %d iterations\n",
		out, len(magnitude), p.Bins(), sc, p.Iterations)
	return nil
}

func magnitudes(p *phase.Phase, samples []float64) ([][]float64, error) {
	power, err := p.Power(samples)
	if err != nil {
		return nil, err
	}
	for _, row := range power {
		for j, v := range row {
			row[j] = math.Sqrt(v)
		}
	}
	return power, nil
}

// convergence is ||S - S'||_F / ||S||_F over the frames both hold.
func convergence(want, got [][]float64) float64 {
	var diff, ref float64
	for i := 0; i < min(len(want), len(got)); i++ {
		d := floats.Distance(want[i], got[i], 2)
		n := floats.Norm(want[i], 2)
		diff += d * d
		ref += n * n
	}
	if ref == 0 {
		return 0
	}
	return math.Sqrt(diff / ref)
}
