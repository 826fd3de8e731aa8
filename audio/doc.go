// Package audio loads and stores the mono waveforms the feature pipeline
// consumes.
//
// It is the filesystem collaborator of the pipeline:
//   - Decoding WAV (faiface/beep) and FLAC (mewkiz/flac) files to mono samples
//   - Writing reconstructed waveforms back to 16-bit PCM WAV
//   - Listing the audio files of a dataset directory in a stable order
//   - Optional sample-rate conversion
package audio
