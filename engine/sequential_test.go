package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/tensor"
)

func buildSmallModel(t *testing.T, relu bool) *Sequential {
	t.Helper()

	b := layers.NewModelBuilder([]int{2, 2, 5, 5}).
		AddConv2D(3, 3, 2, 1, true, "conv")
	if relu {
		b.AddReLU("act")
	} else {
		b.AddSigmoid("act")
	}
	spec, err := b.
		AddFlatten("flatten").
		AddDense(4, true, "latent").
		AddDense(12, true, "expand").
		AddReshape([]int{3, 2, 2}, "unflatten").
		AddConvTranspose2D(2, 3, 2, 1, 1, true, "deconv").
		AddSigmoid("out").
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	seq, err := NewSequential(spec, rand.New(rand.NewSource(42)), tensor.CPU)
	if err != nil {
		t.Fatalf("NewSequential failed: %v", err)
	}
	return seq
}

func randomTensor(t *testing.T, seed int64, shape []int, low, high float32) *tensor.Tensor {
	t.Helper()
	x, err := tensor.RandomUniform(rand.New(rand.NewSource(seed)), shape, low, high, tensor.CPU)
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	return x
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestSequentialForwardShapes(t *testing.T) {
	seq := buildSmallModel(t, true)
	x := randomTensor(t, 1, []int{2, 2, 5, 5}, 0, 1)

	// The small model is not shape-preserving: 5x5 in, 4x4 out
	y, trace, err := seq.Forward(EvalContext(tensor.CPU), x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !tensor.ShapesEqual(y.Shape, []int{2, 2, 4, 4}) {
		t.Errorf("output shape = %v, expected [2 2 4 4]", y.Shape)
	}
	if trace != nil {
		t.Error("eval context should not record a trace")
	}

	t.Run("batch dimension is free", func(t *testing.T) {
		x1 := randomTensor(t, 2, []int{5, 2, 5, 5}, 0, 1)
		y1, _, err := seq.Forward(EvalContext(tensor.CPU), x1)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if y1.Shape[0] != 5 {
			t.Errorf("batch = %d, expected 5", y1.Shape[0])
		}
	})

	t.Run("wrong shape", func(t *testing.T) {
		bad := randomTensor(t, 3, []int{2, 2, 6, 5}, 0, 1)
		if _, _, err := seq.Forward(EvalContext(tensor.CPU), bad); !errors.Is(err, tensor.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("wrong device", func(t *testing.T) {
		if _, _, err := seq.Forward(EvalContext(tensor.Accelerator), x); !errors.Is(err, tensor.ErrDeviceMismatch) {
			t.Errorf("expected ErrDeviceMismatch, got %v", err)
		}
	})
}

func TestSequentialParameters(t *testing.T) {
	seq := buildSmallModel(t, true)
	params := seq.Parameters()
	if len(params) != 8 {
		t.Fatalf("len(Parameters) = %d, expected 8", len(params))
	}

	var total int64
	for _, p := range params {
		if !p.RequiresGrad() {
			t.Error("parameter does not require grad")
		}
		total += int64(p.NumElems)
	}
	if total != seq.Spec().TotalParameters {
		t.Errorf("parameter elements = %d, spec says %d", total, seq.Spec().TotalParameters)
	}

	// conv weight bound is 1/sqrt(2*3*3)
	lo, hi := params[0].MinMax()
	bound := float32(1 / math.Sqrt(18))
	if lo < -bound || hi > bound {
		t.Errorf("conv weights outside [-%v, %v]: [%v, %v]", bound, bound, lo, hi)
	}
}

func TestNewSequentialRejectsAccelerator(t *testing.T) {
	spec, _ := layers.NewModelBuilder([]int{1, 4}).AddDense(2, true, "fc").Compile()
	if _, err := NewSequential(spec, rand.New(rand.NewSource(1)), tensor.Accelerator); !errors.Is(err, tensor.ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
	if _, err := NewSequential(&layers.ModelSpec{}, rand.New(rand.NewSource(1)), tensor.CPU); err == nil {
		t.Error("expected error for uncompiled spec")
	}
}

// TestGradientCheck compares analytic gradients of L = <model(x), r>
// against central finite differences.
func TestGradientCheck(t *testing.T) {
	seq := buildSmallModel(t, false)
	x := randomTensor(t, 5, []int{2, 2, 5, 5}, -1, 1)
	r := randomTensor(t, 6, []int{2, 2, 4, 4}, -1, 1)

	loss := func() float64 {
		y, _, err := seq.Forward(EvalContext(tensor.CPU), x)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		return dot(y.Data, r.Data)
	}

	_, trace, err := seq.Forward(TrainContext(tensor.CPU), x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	gradIn, err := seq.Backward(trace, r)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const eps = 1e-2
	check := func(name string, data []float32, analytic []float32) {
		idx := []int{0, len(data) / 3, len(data) / 2, len(data) - 1}
		for _, i := range idx {
			orig := data[i]
			data[i] = orig + eps
			plus := loss()
			data[i] = orig - eps
			minus := loss()
			data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			diff := math.Abs(numeric - float64(analytic[i]))
			if diff > 1e-3+0.05*math.Abs(numeric) {
				t.Errorf("%s[%d]: analytic %v, numeric %v", name, i, analytic[i], numeric)
			}
		}
	}

	names := []string{"conv.w", "conv.b", "latent.w", "latent.b", "expand.w", "expand.b", "deconv.w", "deconv.b"}
	for i, p := range seq.Parameters() {
		if p.Grad() == nil {
			t.Fatalf("%s has no gradient", names[i])
		}
		check(names[i], p.Data, p.Grad().Data)
	}
	check("input", x.Data, gradIn.Data)
}

func TestBackwardErrors(t *testing.T) {
	seq := buildSmallModel(t, true)
	other := buildSmallModel(t, true)
	x := randomTensor(t, 1, []int{1, 2, 5, 5}, 0, 1)

	_, trace, err := other.Forward(TrainContext(tensor.CPU), x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	g, _ := tensor.Zeros([]int{1, 2, 4, 4}, tensor.CPU)
	if _, err := seq.Backward(trace, g); !errors.Is(err, ErrTraceMismatch) {
		t.Errorf("expected ErrTraceMismatch, got %v", err)
	}
	if _, err := seq.Backward(nil, g); !errors.Is(err, ErrTraceMismatch) {
		t.Errorf("expected ErrTraceMismatch for nil trace, got %v", err)
	}

	bad, _ := tensor.Zeros([]int{1, 2, 3, 3}, tensor.CPU)
	if _, err := other.Backward(trace, bad); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestActivationStages(t *testing.T) {
	x, _ := tensor.NewTensor([]int{1, 4}, tensor.CPU, []float32{-2, -0.5, 0.5, 2})
	g, _ := tensor.Full([]int{1, 4}, 1, tensor.CPU)

	t.Run("relu", func(t *testing.T) {
		s := &reluStage{name: "relu"}
		y, _ := s.Forward(x)
		want := []float32{0, 0, 0.5, 2}
		for i := range want {
			if y.Data[i] != want[i] {
				t.Errorf("y[%d] = %v, expected %v", i, y.Data[i], want[i])
			}
		}
		dx, _ := s.Backward(x, y, g)
		wantGrad := []float32{0, 0, 1, 1}
		for i := range wantGrad {
			if dx.Data[i] != wantGrad[i] {
				t.Errorf("dx[%d] = %v, expected %v", i, dx.Data[i], wantGrad[i])
			}
		}
	})

	t.Run("sigmoid stays in [0,1]", func(t *testing.T) {
		s := &sigmoidStage{name: "sigmoid"}
		big, _ := tensor.NewTensor([]int{1, 3}, tensor.CPU, []float32{-1e6, 0, 1e6})
		y, _ := s.Forward(big)
		if y.Data[0] != 0 || y.Data[1] != 0.5 || y.Data[2] != 1 {
			t.Errorf("sigmoid = %v", y.Data)
		}
		if !y.IsFinite() {
			t.Error("sigmoid produced non-finite values")
		}
	})
}

func TestContexts(t *testing.T) {
	tr := TrainContext(tensor.CPU)
	if tr.Mode != Train || !tr.Grad {
		t.Errorf("TrainContext = %+v", tr)
	}
	ev := EvalContext(tensor.CPU)
	if ev.Mode != Eval || ev.Grad {
		t.Errorf("EvalContext = %+v", ev)
	}
	if Train.String() != "train" || Eval.String() != "eval" {
		t.Error("unexpected mode names")
	}
}
