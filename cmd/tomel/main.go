package main

import (
	"fmt"
	"os"

	"github.com/neurlang/melae/audio"
	"github.com/neurlang/melae/config"
	"github.com/neurlang/melae/internal/cli"
	"github.com/neurlang/melae/windowing"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// features is the msgpack layout written by -o.
type features struct {
	Source     string    `msgpack:"source"`
	SampleRate int       `msgpack:"sample_rate"`
	FrameSize  int       `msgpack:"frame_size"`
	HopSize    int       `msgpack:"hop_size"`
	MelBins    int       `msgpack:"mel_bins"`
	Frames     int       `msgpack:"frames_per_window"`
	Rows       int       `msgpack:"rows"`
	Cols       int       `msgpack:"cols"`
	Data       []float64 `msgpack:"data"`
}

func main() {
	var out string
	cmd := &cobra.Command{
		Use:           "tomel <audio_file>",
		Short:         "Convert audio to windowed mel features",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := cli.ConfigFlag(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the windowed features to this msgpack file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Setup(*configPath, "tomel")
		if err != nil {
			return err
		}
		if err := run(cfg, logger, args[0], out); err != nil {
			cli.Fatal(logger, err)
		}
		_ = logger.Sync()
		return nil
	}

	if err := cmd.Execute(); err != nil {
		cli.Fatal(nil, err)
	}
}

func run(cfg *config.Config, logger *zap.Logger, filename, out string) error {
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
	n, windowed, err := windowing.Window(spec, width)
	if err != nil {
		return err
	}
	bins, total := spec.Dims()
	logger.Info("extracted", zap.String("file", filename), zap.Int("frame_size", frames.Size), zap.Int("hop_size", frames.Hop))

	fmt.Printf("%s: %.3fs at %d Hz\n", filename, w.Duration(), w.SampleRate)
	fmt.Printf("spectrogram: %d bins x %d frames (frame %d, hop %d)\n", bins, total, frames.Size, frames.Hop)
	fmt.Printf("windows: %d x %d frames, %d trailing frames dropped\n", n, width, total-windowing.Frames(n, width))

	if out == "" {
		return nil
	}
	f := features{
		Source:     filename,
		SampleRate: frames.SampleRate,
		FrameSize:  frames.Size,
		HopSize:    frames.Hop,
		MelBins:    bins,
		Frames:     width,
		Rows:       n,
		Cols:       bins * width,
		Data:       flatten(windowed),
	}
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func flatten(m *mat.Dense) []float64 {
	if m.IsEmpty() {
		return nil
	}
	r, _ := m.Dims()
	var out []float64
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
