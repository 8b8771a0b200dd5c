package classifier

import (
	"fmt"

	"github.com/tsawler/go-latent/latent"
	"github.com/tsawler/go-latent/metrics"
)

// Report is the outcome of scoring a classifier on a held-out partition
type Report struct {
	Model       string
	F1          float64 // support-weighted F1
	Accuracy    float64
	Predictions []int
	Confusion   *metrics.ConfusionMatrix
}

// String renders the summary line printed at the end of a run
func (r Report) String() string {
	return fmt.Sprintf("%s Classification F1 Score: %.4f", r.Model, r.F1)
}

// Evaluate fits c on the training latents and scores it on the test latents
func Evaluate(c Classifier, train, test *latent.Dataset, latentDim int) (Report, error) {
	if train.Len() == 0 || test.Len() == 0 {
		return Report{}, fmt.Errorf("empty latent partition: %d train rows, %d test rows", train.Len(), test.Len())
	}
	if train.Dim() != latentDim {
		return Report{}, fmt.Errorf("%w: training latents have %d columns, expected %d", ErrDimensionMismatch, train.Dim(), latentDim)
	}
	if test.Dim() != latentDim {
		return Report{}, fmt.Errorf("%w: test latents have %d columns, expected %d", ErrDimensionMismatch, test.Dim(), latentDim)
	}

	if err := c.Fit(train.Latents, train.Labels); err != nil {
		return Report{}, fmt.Errorf("fit: %w", err)
	}
	pred, err := c.Predict(test.Latents)
	if err != nil {
		return Report{}, fmt.Errorf("predict: %w", err)
	}

	cm, err := metrics.NewConfusionMatrix(test.Labels, pred)
	if err != nil {
		return Report{}, err
	}

	name := "Classifier"
	if named, ok := c.(interface{ Name() string }); ok {
		name = named.Name()
	}

	return Report{
		Model:       name,
		F1:          cm.GetMetric(metrics.WeightedF1Score),
		Accuracy:    cm.GetMetric(metrics.Accuracy),
		Predictions: pred,
		Confusion:   cm,
	}, nil
}
