// Command towav reconstructs audio from the mel features of an audio file.
//
// The clip goes through the same feature pipeline as training: decibel mel
// spectrogram, windowing, and optionally the trained autoencoder. The
// windows are then unrolled back into a spectrogram and inverted with
// Griffin-Lim phase estimation. Listening to the result shows what the
// features (or the model) keep of the sound.
//
// Usage:
//
//	towav [-c hyper_parameters.yaml] [-m model.msgpack] [-o out.wav] <audio_file>
//
// The output WAV file defaults to <audio_file>.recon.wav. Loudness is not
// recovered: the spectrogram peak maps to unit power.
package main
