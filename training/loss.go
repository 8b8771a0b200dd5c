package training

import (
	"fmt"

	"github.com/tsawler/go-latent/tensor"
)

// Loss maps a prediction and its target to a scalar and back to a gradient
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (float64, error)
	Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (float64, error) {
	if err := checkPair(predicted, target); err != nil {
		return 0, err
	}

	var sum float64
	for i, p := range predicted.Data {
		d := float64(p) - float64(target.Data[i])
		sum += d * d
	}

	if mse.reduction == "mean" {
		sum /= float64(predicted.NumElems)
	}
	return sum, nil
}

// Backward computes the gradient of MSE loss: 2 * (predicted - target) / N
func (mse *MSELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkPair(predicted, target); err != nil {
		return nil, err
	}

	grad, err := tensor.Zeros(predicted.Shape, predicted.Device)
	if err != nil {
		return nil, err
	}

	scale := float32(2)
	if mse.reduction == "mean" {
		scale /= float32(predicted.NumElems)
	}
	for i, p := range predicted.Data {
		grad.Data[i] = scale * (p - target.Data[i])
	}
	return grad, nil
}

func checkPair(predicted, target *tensor.Tensor) error {
	if !tensor.ShapesEqual(predicted.Shape, target.Shape) {
		return fmt.Errorf("%w: predicted %v, target %v", tensor.ErrShapeMismatch, predicted.Shape, target.Shape)
	}
	if predicted.Device != target.Device {
		return fmt.Errorf("%w: predicted on %s, target on %s", tensor.ErrDeviceMismatch, predicted.Device, target.Device)
	}
	return nil
}
