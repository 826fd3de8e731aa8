package windowing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a matrix does not have the dimensions
// implied by the mel bin count and window width.
var ErrShapeMismatch = errors.New("windowing: shape mismatch")

// Frames returns how many spectrogram frames numWindows windows of width w cover.
func Frames(numWindows, w int) int {
	return numWindows * w
}

// Window stacks framesPerWindow consecutive columns of spec into each row of
// the result and returns the row count with the matrix. Trailing frames that
// do not fill a window are discarded. A spectrogram shorter than one window
// yields 0 and an empty matrix.
func Window(spec *mat.Dense, framesPerWindow int) (int, *mat.Dense, error) {
	if framesPerWindow <= 0 {
		return 0, nil, fmt.Errorf("%w: frames per window %d", ErrShapeMismatch, framesPerWindow)
	}
	if spec == nil || spec.IsEmpty() {
		return 0, &mat.Dense{}, nil
	}
	bins, frames := spec.Dims()
	windows := frames / framesPerWindow
	if windows == 0 {
		return 0, &mat.Dense{}, nil
	}

	w := framesPerWindow
	out := mat.NewDense(windows, bins*w, nil)
	for r := 0; r < windows; r++ {
		row := out.RawRowView(r)
		for m := 0; m < bins; m++ {
			for f := 0; f < w; f++ {
				row[m*w+f] = spec.At(m, r*w+f)
			}
		}
	}
	return windows, out, nil
}

// Unwindow reverses Window, returning a [melBins x rows*framesPerWindow]
// spectrogram. An empty features matrix gives an empty result.
func Unwindow(features *mat.Dense, melBins, framesPerWindow int) (*mat.Dense, error) {
	if melBins <= 0 || framesPerWindow <= 0 {
		return nil, fmt.Errorf("%w: %d mel bins, %d frames per window", ErrShapeMismatch, melBins, framesPerWindow)
	}
	if features == nil || features.IsEmpty() {
		return &mat.Dense{}, nil
	}
	rows, cols := features.Dims()
	w := framesPerWindow
	if cols != melBins*w {
		return nil, fmt.Errorf("%w: row width %d, want %d*%d", ErrShapeMismatch, cols, melBins, w)
	}

	spec := mat.NewDense(melBins, Frames(rows, w), nil)
	for r := 0; r < rows; r++ {
		row := features.RawRowView(r)
		for m := 0; m < melBins; m++ {
			for f := 0; f < w; f++ {
				spec.Set(m, r*w+f, row[m*w+f])
			}
		}
	}
	return spec, nil
}
