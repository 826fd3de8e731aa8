// Package windowing groups the frames of a spectrogram into fixed-width,
// non-overlapping windows and flattens each window into one feature row.
//
// A window of W frames over M mel bins becomes a row of M*W values laid out
// mel-major, frame-minor: element m*W+f holds bin m of frame f. Frames that
// do not fill a last window are dropped. Unwindow is the exact inverse on
// the frames that survive.
package windowing
