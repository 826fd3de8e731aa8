// Command evaluate scores recordings with a trained model and flags the
// anomalous ones.
//
// Each clip's mean squared reconstruction error is compared with the
// threshold stored in the model (or recomputed at --quantile from the stored
// gamma fit). One line per clip is printed: name, score and decision. When
// the file names follow the DCASE convention ("normal" or "anomaly" in the
// name) a confusion matrix, precision, recall, F1 and ROC AUC are printed
// as well.
//
// Usage:
//
//	evaluate [-c hyper_parameters.yaml] [-m model.msgpack] [-q 0.9] <dir_or_file>...
package main
