// Package cache stores windowed feature matrices in BadgerDB so repeated
// loads of the same clips can skip extraction.
//
// Entries are keyed by a fingerprint of the acoustic configuration and the
// clip name, and encoded with msgpack. With Float16 precision the values are
// stored as IEEE half floats, which quarters the size at the cost of about
// three decimal digits.
package cache
