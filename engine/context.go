package engine

import "github.com/tsawler/go-latent/tensor"

// Mode selects training or evaluation behaviour of a forward pass
type Mode int

const (
	Train Mode = iota
	Eval
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	default:
		return "unknown"
	}
}

// ExecContext is passed to every forward call. Models keep no mode flags of
// their own, so the caller always states device, mode and whether a
// backward pass will follow.
type ExecContext struct {
	Device tensor.DeviceType
	Mode   Mode

	// Grad records the activations needed by Backward
	Grad bool
}

// TrainContext is the context for an optimisation step
func TrainContext(device tensor.DeviceType) ExecContext {
	return ExecContext{Device: device, Mode: Train, Grad: true}
}

// EvalContext is the context for validation and inference. No trace is kept.
func EvalContext(device tensor.DeviceType) ExecContext {
	return ExecContext{Device: device, Mode: Eval, Grad: false}
}
