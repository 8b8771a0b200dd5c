// Package metrics scores classifier predictions against true labels
package metrics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-latent/tables"
)

// ErrLengthMismatch is returned when label and prediction slices differ in length
var ErrLengthMismatch = errors.New("label and prediction lengths differ")

// MetricType represents different evaluation metrics
type MetricType int

const (
	Accuracy MetricType = iota
	MacroPrecision
	MacroRecall
	MacroF1
	MicroPrecision
	MicroRecall
	MicroF1
	WeightedPrecision
	WeightedRecall
	WeightedF1Score
)

func (mt MetricType) String() string {
	switch mt {
	case Accuracy:
		return "Accuracy"
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroPrecision:
		return "MicroPrecision"
	case MicroRecall:
		return "MicroRecall"
	case MicroF1:
		return "MicroF1"
	case WeightedPrecision:
		return "WeightedPrecision"
	case WeightedRecall:
		return "WeightedRecall"
	case WeightedF1Score:
		return "WeightedF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ClassScore holds the one-vs-rest scores of a single class
type ClassScore struct {
	Label     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ConfusionMatrix counts predictions per (true, predicted) class pair. Classes
// are the sorted union of every label seen in either slice.
type ConfusionMatrix struct {
	Classes      []int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int

	index         map[int]int
	cachedMetrics map[MetricType]float64
}

// NewConfusionMatrix tallies trueLabels against predLabels
func NewConfusionMatrix(trueLabels, predLabels []int) (*ConfusionMatrix, error) {
	if len(trueLabels) != len(predLabels) {
		return nil, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(trueLabels), len(predLabels))
	}

	seen := make(map[int]struct{})
	for _, l := range trueLabels {
		seen[l] = struct{}{}
	}
	for _, l := range predLabels {
		seen[l] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, l := range classes {
		index[l] = i
	}

	matrix := make([][]int, len(classes))
	for i := range matrix {
		matrix[i] = make([]int, len(classes))
	}
	for i, t := range trueLabels {
		matrix[index[t]][index[predLabels[i]]]++
	}

	return &ConfusionMatrix{
		Classes:       classes,
		Matrix:        matrix,
		TotalSamples:  len(trueLabels),
		index:         index,
		cachedMetrics: make(map[MetricType]float64),
	}, nil
}

// NumClasses returns the number of distinct labels
func (cm *ConfusionMatrix) NumClasses() int {
	return len(cm.Classes)
}

// Count returns how many samples of class trueLabel were predicted as predLabel
func (cm *ConfusionMatrix) Count(trueLabel, predLabel int) int {
	i, ok := cm.index[trueLabel]
	j, ok2 := cm.index[predLabel]
	if !ok || !ok2 {
		return 0
	}
	return cm.Matrix[i][j]
}

// PerClass returns precision, recall, F1 and support for every class. A
// class with no predictions (or no samples) scores 0 on the undefined ratio.
func (cm *ConfusionMatrix) PerClass() []ClassScore {
	scores := make([]ClassScore, len(cm.Classes))
	for c, label := range cm.Classes {
		tp := float64(cm.Matrix[c][c])
		var fp, fn float64
		support := 0
		for other := range cm.Classes {
			support += cm.Matrix[c][other]
			if other != c {
				fp += float64(cm.Matrix[other][c])
				fn += float64(cm.Matrix[c][other])
			}
		}

		s := ClassScore{Label: label, Support: support}
		if tp+fp > 0 {
			s.Precision = tp / (tp + fp)
		}
		if tp+fn > 0 {
			s.Recall = tp / (tp + fn)
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		scores[c] = s
	}
	return scores
}

// GetMetric calculates and caches an aggregate metric
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	if value, exists := cm.cachedMetrics[metric]; exists {
		return value
	}

	var result float64
	switch metric {
	case Accuracy:
		result = cm.accuracy()
	case MacroPrecision, MacroRecall, MacroF1:
		result = cm.macro(metric)
	case MicroPrecision, MicroRecall, MicroF1:
		// Single-label multiclass: every error is one FP and one FN
		result = cm.accuracy()
	case WeightedPrecision, WeightedRecall, WeightedF1Score:
		result = cm.weighted(metric)
	default:
		return 0.0
	}

	cm.cachedMetrics[metric] = result
	return result
}

func (cm *ConfusionMatrix) accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := range cm.Classes {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

func pick(s ClassScore, metric MetricType) float64 {
	switch metric {
	case MacroPrecision, WeightedPrecision:
		return s.Precision
	case MacroRecall, WeightedRecall:
		return s.Recall
	default:
		return s.F1
	}
}

func (cm *ConfusionMatrix) macro(metric MetricType) float64 {
	if len(cm.Classes) == 0 {
		return 0.0
	}
	values := make([]float64, len(cm.Classes))
	for i, s := range cm.PerClass() {
		values[i] = pick(s, metric)
	}
	return floats.Sum(values) / float64(len(values))
}

// weighted averages per-class scores by each class's share of true samples
func (cm *ConfusionMatrix) weighted(metric MetricType) float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}
	scores := cm.PerClass()
	values := make([]float64, len(scores))
	weights := make([]float64, len(scores))
	for i, s := range scores {
		values[i] = pick(s, metric)
		weights[i] = float64(s.Support)
	}
	return floats.Dot(values, weights) / float64(cm.TotalSamples)
}

// Report renders the per-class scores and aggregates as a table
func (cm *ConfusionMatrix) Report() string {
	tw := tables.NewWriter(
		tables.Left("Class"),
		tables.Right("Precision"),
		tables.Right("Recall"),
		tables.Right("F1"),
		tables.Right("Support"),
	)
	for _, s := range cm.PerClass() {
		tw.AppendRow(table.Row{s.Label, fmt.Sprintf("%.4f", s.Precision), fmt.Sprintf("%.4f", s.Recall), fmt.Sprintf("%.4f", s.F1), s.Support})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"macro", fmt.Sprintf("%.4f", cm.GetMetric(MacroPrecision)), fmt.Sprintf("%.4f", cm.GetMetric(MacroRecall)), fmt.Sprintf("%.4f", cm.GetMetric(MacroF1)), cm.TotalSamples})
	tw.AppendRow(table.Row{"weighted", fmt.Sprintf("%.4f", cm.GetMetric(WeightedPrecision)), fmt.Sprintf("%.4f", cm.GetMetric(WeightedRecall)), fmt.Sprintf("%.4f", cm.GetMetric(WeightedF1Score)), cm.TotalSamples})
	tw.AppendFooter(table.Row{"accuracy", "", "", fmt.Sprintf("%.4f", cm.GetMetric(Accuracy)), cm.TotalSamples})
	return tw.Render()
}

// WeightedF1 returns the support-weighted mean of per-class F1 scores
func WeightedF1(trueLabels, predLabels []int) (float64, error) {
	cm, err := NewConfusionMatrix(trueLabels, predLabels)
	if err != nil {
		return 0, err
	}
	return cm.GetMetric(WeightedF1Score), nil
}
