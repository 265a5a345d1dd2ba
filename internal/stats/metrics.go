package stats

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// MSE is the mean squared error over every output dimension of every sample.
func MSE(outputs, targets [][]float64) float64 {
	sum, count := 0.0, 0
	for i := range outputs {
		for j := range outputs[i] {
			diff := targets[i][j] - outputs[i][j]
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Accuracy is the share of samples whose first output lands on the same side
// of threshold as the first target.
func Accuracy(outputs, targets [][]float64, threshold float64) float64 {
	if len(outputs) == 0 {
		return 0
	}
	hits := 0
	for i := range outputs {
		if (outputs[i][0] >= threshold) == (targets[i][0] >= threshold) {
			hits++
		}
	}
	return float64(hits) / float64(len(outputs))
}

// AUC is the area under the ROC curve of the first output ranked against the
// first target split at threshold. It reports false when only one class is
// present.
func AUC(outputs, targets [][]float64, threshold float64) (float64, bool) {
	scores := make([]float64, len(outputs))
	classes := make([]bool, len(outputs))
	positives := 0
	for i := range outputs {
		scores[i] = outputs[i][0]
		classes[i] = targets[i][0] >= threshold
		if classes[i] {
			positives++
		}
	}
	if positives == 0 || positives == len(outputs) {
		return 0, false
	}

	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), true
}

// Summarize returns the mean and sample standard deviation of values. The
// deviation of fewer than two values is zero.
func Summarize(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}
