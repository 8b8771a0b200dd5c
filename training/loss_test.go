package training

import (
	"errors"
	"math"
	"testing"

	"github.com/tsawler/go-latent/tensor"
)

func TestMSELoss(t *testing.T) {
	pred, _ := tensor.NewTensor([]int{2, 2}, tensor.CPU, []float32{1, 2, 3, 4})
	target, _ := tensor.NewTensor([]int{2, 2}, tensor.CPU, []float32{1, 1, 1, 1})

	t.Run("mean", func(t *testing.T) {
		mse := NewMSELoss("")
		loss, err := mse.Forward(pred, target)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		// (0 + 1 + 4 + 9) / 4
		if math.Abs(loss-3.5) > 1e-9 {
			t.Errorf("loss = %v, expected 3.5", loss)
		}

		grad, err := mse.Backward(pred, target)
		if err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		expected := []float32{0, 0.5, 1, 1.5}
		for i, v := range expected {
			if math.Abs(float64(grad.Data[i]-v)) > 1e-6 {
				t.Errorf("grad[%d] = %v, expected %v", i, grad.Data[i], v)
			}
		}
	})

	t.Run("sum", func(t *testing.T) {
		loss, err := NewMSELoss("sum").Forward(pred, target)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if loss != 14 {
			t.Errorf("loss = %v, expected 14", loss)
		}
	})

	t.Run("identical inputs", func(t *testing.T) {
		loss, _ := NewMSELoss("mean").Forward(pred, pred)
		if loss != 0 {
			t.Errorf("loss = %v, expected 0", loss)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		other, _ := tensor.NewTensor([]int{4}, tensor.CPU, nil)
		if _, err := NewMSELoss("mean").Forward(pred, other); !errors.Is(err, tensor.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("device mismatch", func(t *testing.T) {
		other, _ := tensor.NewTensor([]int{2, 2}, tensor.Accelerator, nil)
		if _, err := NewMSELoss("mean").Backward(pred, other); !errors.Is(err, tensor.ErrDeviceMismatch) {
			t.Errorf("expected ErrDeviceMismatch, got %v", err)
		}
	})
}
