package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/neurlang/melae/config"
	"github.com/neurlang/melae/internal/cli"
	"github.com/neurlang/melae/model"
	"github.com/neurlang/melae/score"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var out string
	cmd := &cobra.Command{
		Use:           "train <dir_or_file>...",
		Short:         "Train the autoencoder and calibrate its anomaly threshold",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := cli.ConfigFlag(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "model.msgpack", "where to write the trained model")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Setup(*configPath, "train")
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := run(ctx, cfg, logger, args, out); err != nil {
			cli.Fatal(logger, err)
		}
		_ = logger.Sync()
		return nil
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		cli.Fatal(nil, err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, out string) error {
	sources, err := cli.Sources(cfg, args)
	if err != nil {
		return err
	}
	store, err := cfg.OpenCache(logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	loader := cfg.Loader(store, logger)
	data, err := loader.Load(ctx, sources)
	if err != nil {
		return err
	}
	if data.Rows() == 0 {
		return fmt.Errorf("no clip is long enough for a single window")
	}
	_, width := data.Features.Dims()

	ae, err := model.New(cfg.ModelLayout(width), cfg.Training.Seed)
	if err != nil {
		return err
	}
	ae.Features = loader.Fingerprint()
	hist, err := model.Train(ctx, ae, data.Features, cfg.TrainConfig(), logger)
	if err != nil {
		return err
	}

	res, err := (&score.Scorer{Logger: logger}).Score(ae, score.Batches(data.Features, cfg.Training.BatchSize), data.ClipLengths)
	if err != nil {
		return err
	}
	g, err := score.FitGamma(res.PerClip)
	if err != nil {
		return err
	}
	q := cfg.Threshold.Quantile
	ae.Calibration = model.Calibration{
		Shape:     g.Shape,
		Loc:       g.Loc,
		Scale:     g.Scale,
		Quantile:  q,
		Threshold: g.Threshold(q),
	}
	if err := ae.SaveFile(out); err != nil {
		return err
	}

	flagged := 0
	for _, f := range score.Predict(res.PerClip, ae.Calibration.Threshold) {
		if f {
			flagged++
		}
	}
	logger.Info("saved model",
		zap.String("file", out),
		zap.String("run", ae.RunID),
		zap.Int("clips", len(data.Filenames)),
		zap.Int("rows", data.Rows()),
		zap.Int("epochs", len(hist.TrainLoss)),
		zap.Float64("mse", res.GlobalMSE),
		zap.Float64("threshold", ae.Calibration.Threshold),
	)
	fmt.Printf("trained on %d clips (%d windows), mse %.6g\n", len(data.Filenames), data.Rows(), res.GlobalMSE)
	fmt.Printf("gamma shape %.4g loc %.4g scale %.4g, threshold@%.2f = %.6g (%d training clips above)\n",
		g.Shape, g.Loc, g.Scale, q, ae.Calibration.Threshold, flagged)
	return nil
}
