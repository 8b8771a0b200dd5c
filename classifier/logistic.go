// Package classifier fits a linear probe on latent features and scores it
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrDimensionMismatch is returned when features do not match the fitted width
	ErrDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrNotFitted is returned by Predict before Fit
	ErrNotFitted = errors.New("classifier not fitted")

	// ErrSingleClass is returned when the training labels hold one class only
	ErrSingleClass = errors.New("need samples of at least two classes")
)

// Classifier is a supervised model over dense feature rows
type Classifier interface {
	Fit(x mat.Matrix, y []int) error
	Predict(x mat.Matrix) ([]int, error)
}

// LogisticRegression is multinomial softmax regression with an L2 penalty
// on the weights. The intercept is not penalised.
type LogisticRegression struct {
	C       float64 // inverse regularisation strength
	MaxIter int
	Tol     float64 // gradient infinity-norm threshold

	classes []int
	dim     int
	weights *mat.Dense // dim x K
	bias    []float64  // K
	result  *optimize.Result
}

// NewLogisticRegression returns a classifier with C=1 and 1000 iterations
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1.0, MaxIter: 1000, Tol: 1e-4}
}

// Name identifies the model in reports
func (lr *LogisticRegression) Name() string {
	return "Logistic Regression"
}

// Classes returns the sorted class labels seen by Fit
func (lr *LogisticRegression) Classes() []int {
	return lr.classes
}

// Iterations returns the L-BFGS iteration count of the last Fit
func (lr *LogisticRegression) Iterations() int {
	if lr.result == nil {
		return 0
	}
	return lr.result.Stats.MajorIterations
}

// Fit minimises C * cross-entropy + 0.5 * ||W||^2 with L-BFGS
func (lr *LogisticRegression) Fit(x mat.Matrix, y []int) error {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("empty training matrix %dx%d", n, d)
	}
	if n != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, n, len(y))
	}
	if lr.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", lr.C)
	}

	classes, targets := encodeLabels(y)
	if len(classes) < 2 {
		return ErrSingleClass
	}
	k := len(classes)

	// Append a ones column so the bias is the last weight row
	xa := mat.NewDense(n, d+1, nil)
	xa.Slice(0, n, 0, d).(*mat.Dense).Copy(x)
	for i := 0; i < n; i++ {
		xa.Set(i, d, 1)
	}

	obj := &softmaxObjective{x: xa, targets: targets, features: d, classes: k, c: lr.C}
	problem := optimize.Problem{
		Func: func(p []float64) float64 { return obj.evaluate(p, nil) },
		Grad: func(grad, p []float64) { obj.evaluate(p, grad) },
	}

	maxIter := lr.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: lr.Tol,
	}

	// A line-search stall near the optimum still carries a usable location
	result, err := optimize.Minimize(problem, make([]float64, (d+1)*k), settings, &optimize.LBFGS{})
	if err != nil && result == nil {
		return fmt.Errorf("l-bfgs failed: %w", err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return fmt.Errorf("l-bfgs diverged: objective %v", result.F)
	}

	params := mat.NewDense(d+1, k, result.X)
	lr.weights = mat.DenseCopyOf(params.Slice(0, d, 0, k))
	lr.bias = mat.Row(nil, d, params)
	lr.classes = classes
	lr.dim = d
	lr.result = result
	return nil
}

// Predict returns the most probable class label for each row
func (lr *LogisticRegression) Predict(x mat.Matrix) ([]int, error) {
	scores, err := lr.decision(x)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = lr.classes[best]
	}
	return out, nil
}

// PredictProba returns softmax class probabilities, columns ordered as Classes
func (lr *LogisticRegression) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	scores, err := lr.decision(x)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		lse := logSumExp(row)
		for j := range row {
			row[j] = math.Exp(row[j] - lse)
		}
	}
	return scores, nil
}

func (lr *LogisticRegression) decision(x mat.Matrix) (*mat.Dense, error) {
	if lr.weights == nil {
		return nil, ErrNotFitted
	}
	n, d := x.Dims()
	if d != lr.dim {
		return nil, fmt.Errorf("%w: got %d features, fitted on %d", ErrDimensionMismatch, d, lr.dim)
	}
	scores := mat.NewDense(n, len(lr.classes), nil)
	scores.Mul(x, lr.weights)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		for j := range row {
			row[j] += lr.bias[j]
		}
	}
	return scores, nil
}

// softmaxObjective is the penalised multinomial negative log-likelihood over
// a (features+1) x classes parameter matrix stored row-major.
type softmaxObjective struct {
	x        *mat.Dense // n x (features+1), last column ones
	targets  []int
	features int
	classes  int
	c        float64
}

// evaluate returns the objective at p and, when grad is non-nil, writes its
// gradient.
func (o *softmaxObjective) evaluate(p, grad []float64) float64 {
	n, _ := o.x.Dims()
	w := mat.NewDense(o.features+1, o.classes, p)

	var scores mat.Dense
	scores.Mul(o.x, w)

	var loss float64
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		lse := logSumExp(row)
		loss += lse - row[o.targets[i]]
		if grad != nil {
			// residual = softmax - onehot
			for j := range row {
				row[j] = math.Exp(row[j] - lse)
			}
			row[o.targets[i]] -= 1
		}
	}
	loss *= o.c

	penalised := p[:o.features*o.classes]
	for _, v := range penalised {
		loss += 0.5 * v * v
	}

	if grad != nil {
		g := mat.NewDense(o.features+1, o.classes, grad)
		g.Mul(o.x.T(), &scores)
		g.Scale(o.c, g)
		for i, v := range penalised {
			grad[i] += v
		}
	}
	return loss
}

func logSumExp(row []float64) float64 {
	peak := row[0]
	for _, v := range row[1:] {
		if v > peak {
			peak = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(v - peak)
	}
	return peak + math.Log(sum)
}

// encodeLabels maps arbitrary labels onto 0..K-1 in sorted label order
func encodeLabels(y []int) ([]int, []int) {
	seen := make(map[int]struct{})
	for _, l := range y {
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
	targets := make([]int, len(y))
	for i, l := range y {
		targets[i] = index[l]
	}
	return classes, targets
}
