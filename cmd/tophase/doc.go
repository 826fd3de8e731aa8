// Command tophase checks how much of a recording survives when its phase is
// thrown away.
//
// The linear STFT magnitude of the input is fed to Griffin-Lim with the
// frame geometry and iteration count of the configuration, and the estimate
// is written as <audio_file>.gl.wav. The spectral convergence between the
// original and the rebuilt magnitudes is printed, which tells whether the
// iteration count is enough before tuning the mel inversion of towav.
//
// Usage:
//
//	tophase [-c hyper_parameters.yaml] [-i 64] [-o out.wav] <audio_file>
package main
