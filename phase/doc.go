// Package phase provides short-time Fourier analysis and phase
// reconstruction for magnitude spectrograms.
//
// This package implements the STFT used on both sides of the mel pipeline. It supports:
//   - Centred, reflect-padded analysis frames with a periodic Hann window
//   - Power spectra of the non-negative frequency bins
//   - Overlap-add synthesis normalised by the squared window sum
//   - Griffin-Lim phase estimation (with momentum) from magnitudes alone
package phase
