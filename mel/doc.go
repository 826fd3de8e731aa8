// Package mel provides mel-frequency spectrogram generation and audio synthesis.
//
// This package implements conversion between audio waveforms and decibel
// scaled mel spectrograms, the feature front-end of the anomaly detector. It supports:
//   - Power mel spectrograms from centred, periodic Hann-windowed STFT frames (Slaney filterbank)
//   - Decibel scaling referenced to the spectrogram maximum, clipped at TopDB
//   - Optional delta rows appended below the mel bands
//   - Reconstructing audio from a decibel mel spectrogram via NNLS and Griffin-Lim
//
// The frame size is derived from FrameSizeSeconds and the clip's sample rate
// and the hop is always half of it. Extract returns the derived Frames so
// the exact same sizes can be handed to Invert.
package mel
