// Command tomel converts an audio file (WAV/FLAC) to windowed mel features.
//
// The clip is turned into a decibel mel spectrogram, grouped into windows of
// number_of_frames_to_concatenate frames and summarised on stdout: the
// spectrogram shape, the window count and how many trailing frames were
// dropped.
//
// Usage:
//
//	tomel [-c hyper_parameters.yaml] [-o features.msgpack] <audio_file>
//
// With -o the windowed feature matrix is written with msgpack.
//
// Supported input formats: .wav, .flac
package main
