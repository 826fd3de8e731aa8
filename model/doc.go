// Package model implements the reconstruction network of the anomaly
// detector: a symmetric feed-forward autoencoder with batch normalisation
// and ReLU on every layer but the output.
//
// The network maps windowed mel features through a narrow bottleneck and
// back. It is trained with Adam on the mean squared reconstruction error of
// normal clips only, so unusual sounds reconstruct poorly. Trained models
// are stored with msgpack together with the threshold calibrated on the
// training errors.
package model
