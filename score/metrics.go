package score

import (
	"fmt"
	"math"

	"github.com/neurlang/melae/bundle"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises thresholded anomaly decisions against known labels,
// where true means anomalous.
type Metrics struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	Accuracy  float64
	Precision float64 // 0 when nothing was flagged
	Recall    float64 // 0 when there are no positives
	F1        float64
	// AUC is the area under the ROC curve of the raw scores, NaN unless
	// both classes are present.
	AUC float64
}

// Evaluate compares Predict(scores, threshold) with labels.
func Evaluate(scores []float64, labels []bool, threshold float64) (Metrics, error) {
	if len(scores) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: %d scores, %d labels", bundle.ErrLengthMismatch, len(scores), len(labels))
	}
	var m Metrics
	for i, flagged := range Predict(scores, threshold) {
		switch {
		case flagged && labels[i]:
			m.TruePositives++
		case flagged:
			m.FalsePositives++
		case labels[i]:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}
	if n := len(scores); n > 0 {
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(n)
	}
	if d := m.TruePositives + m.FalsePositives; d > 0 {
		m.Precision = float64(m.TruePositives) / float64(d)
	}
	if d := m.TruePositives + m.FalseNegatives; d > 0 {
		m.Recall = float64(m.TruePositives) / float64(d)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.AUC = AUC(scores, labels)
	return m, nil
}

// AUC returns the area under the ROC curve of scores, where higher scores
// should indicate the true class. Non-finite scores are skipped.
func AUC(scores []float64, labels []bool) float64 {
	y := make([]float64, 0, len(scores))
	classes := make([]bool, 0, len(scores))
	pos, neg := 0, 0
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		y = append(y, v)
		classes = append(classes, labels[i])
		if labels[i] {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
