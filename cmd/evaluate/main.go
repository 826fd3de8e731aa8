package main

import (
	"context"
	"fmt"
	"math"
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
	var modelPath string
	var quantile float64
	cmd := &cobra.Command{
		Use:           "evaluate <dir_or_file>...",
		Short:         "Score recordings and flag anomalies",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := cli.ConfigFlag(cmd)
	cmd.Flags().StringVarP(&modelPath, "model", "m", "model.msgpack", "trained model")
	cmd.Flags().Float64VarP(&quantile, "quantile", "q", 0, "recompute the threshold at this gamma quantile (default: stored threshold)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Setup(*configPath, "evaluate")
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := run(ctx, cfg, logger, args, modelPath, quantile); err != nil {
			cli.Fatal(logger, err)
		}
		_ = logger.Sync()
		return nil
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		cli.Fatal(nil, err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, modelPath string, quantile float64) error {
	ae, err := model.LoadFile(modelPath)
	if err != nil {
		return err
	}
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

	// every clip, in order
	loader := cfg.Loader(store, logger)
	loader.Shuffle = false
	loader.Percentage = 0
	if fp := loader.Fingerprint(); ae.Features != "" && ae.Features != fp {
		logger.Warn("feature settings differ from training", zap.String("model", ae.Features), zap.String("config", fp))
	}
	data, err := loader.Load(ctx, sources)
	if err != nil {
		return err
	}
	if data.Rows() == 0 {
		return fmt.Errorf("no clip is long enough for a single window")
	}

	res, err := (&score.Scorer{Logger: logger}).Score(ae, score.Batches(data.Features, cfg.Training.BatchSize), data.ClipLengths)
	if err != nil {
		return err
	}

	c := ae.Calibration
	if c.Shape <= 0 || c.Scale <= 0 {
		return fmt.Errorf("%s has no calibrated threshold", modelPath)
	}
	threshold := c.Threshold
	if quantile > 0 {
		if quantile >= 1 {
			return fmt.Errorf("quantile %g outside (0, 1)", quantile)
		}
		threshold = score.Gamma{Shape: c.Shape, Loc: c.Loc, Scale: c.Scale}.Threshold(quantile)
	}

	predictions := score.Predict(res.PerClip, threshold)
	var scores []float64
	var labels []bool
	for i, name := range data.Filenames {
		verdict := "normal"
		switch {
		case math.IsNaN(res.PerClip[i]):
			verdict = "skipped"
		case predictions[i]:
			verdict = "anomaly"
		}
		fmt.Printf("%s\t%.6g\t%s\n", name, res.PerClip[i], verdict)

		if anomalous, ok := cli.Label(name); ok {
			scores = append(scores, res.PerClip[i])
			labels = append(labels, anomalous)
		}
	}
	logger.Info("scored", zap.Int("clips", len(data.Filenames)), zap.Float64("threshold", threshold), zap.Float64("mse", res.GlobalMSE))

	if len(labels) == 0 {
		return nil
	}
	m, err := score.Evaluate(scores, labels, threshold)
	if err != nil {
		return err
	}
	fmt.Printf("\nthreshold %.6g over %d labelled clips\n", threshold, len(labels))
	fmt.Printf("tp %d  fp %d  tn %d  fn %d\n", m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives)
	fmt.Printf("accuracy %.4f  precision %.4f  recall %.4f  f1 %.4f  auc %.4f\n", m.Accuracy, m.Precision, m.Recall, m.F1, m.AUC)
	return nil
}
