// Package bundle concatenates the windowed features of many clips into one
// dataset matrix and splits matrices of the same height back into clips.
//
// The clip lengths recorded by Bundle are the only link between a row of
// the dataset and the clip it came from, so every stage that reorders or
// drops rows must do so before bundling.
package bundle
