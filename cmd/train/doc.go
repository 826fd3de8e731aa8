// Command train fits the anomaly detector on recordings of normal operation.
//
// Every clip in the given files or directories is converted to windowed mel
// features and bundled into one dataset. The autoencoder is trained to
// reconstruct it, a gamma distribution is fitted to the per-clip training
// errors and its quantile (threshold.quantile, 0.9 by default) is stored
// with the model as the anomaly threshold.
//
// Usage:
//
//	train [-c hyper_parameters.yaml] [-o model.msgpack] <dir_or_file>...
package main
