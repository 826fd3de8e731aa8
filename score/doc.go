// Package score measures how well a model reconstructs windowed features and
// turns reconstruction errors into anomaly decisions.
//
// Scorer.Score runs the model over row batches and reports the mean squared
// error per clip and per row. FitGamma fits a three parameter gamma
// distribution to the errors of normal clips; its Threshold at a quantile
// (0.9 by default) is the decision boundary used by Predict.
package score
