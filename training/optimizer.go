package training

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/tsawler/go-latent/tensor"
)

// Optimizer interface defines the methods that all optimizers must implement
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// OptimizerConfig selects and parameterises an optimizer
type OptimizerConfig struct {
	Name         string // "adam", "sgd" or "rmsprop"
	LearningRate float64
	Momentum     float64 // sgd and rmsprop
	WeightDecay  float64
}

// NewOptimizer builds the optimizer named in cfg over parameters
func NewOptimizer(cfg OptimizerConfig, parameters []*tensor.Tensor) (Optimizer, error) {
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	}
	switch strings.ToLower(cfg.Name) {
	case "", "adam":
		return NewAdam(parameters, cfg.LearningRate, 0.9, 0.999, 1e-8, cfg.WeightDecay), nil
	case "sgd":
		return NewSGD(parameters, cfg.LearningRate, cfg.Momentum, cfg.WeightDecay), nil
	case "rmsprop":
		return NewRMSProp(parameters, cfg.LearningRate, 0.99, 1e-8, cfg.Momentum, cfg.WeightDecay), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Name)
	}
}

// SGD implements Stochastic Gradient Descent with optional momentum
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	velocities   map[*tensor.Tensor][]float32
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		velocities:   make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	lr := float32(sgd.learningRate)
	mu := float32(sgd.momentum)
	wd := float32(sgd.weightDecay)

	for _, param := range sgd.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad().Data

		var velocity []float32
		if sgd.momentum > 0 {
			velocity = sgd.velocities[param]
			if velocity == nil {
				velocity = make([]float32, param.NumElems)
				sgd.velocities[param] = velocity
			}
		}

		for i, g := range grad {
			g += wd * param.Data[i]
			if velocity != nil {
				// velocity = momentum * velocity + grad
				velocity[i] = mu*velocity[i] + g
				g = velocity[i]
			}
			param.Data[i] -= lr * g
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// Adam implements the Adam optimizer with bias-corrected moment estimates
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor][]float32 // First moment estimates
	v           map[*tensor.Tensor][]float32 // Second moment estimates
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	return &Adam{
		parameters:  parameters,
		lr:          lr,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor][]float32),
		v:           make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	b1 := float32(adam.beta1)
	b2 := float32(adam.beta2)
	wd := float32(adam.weightDecay)
	stepSize := float32(adam.lr / bias1)
	invSqrtBias2 := float32(1 / math.Sqrt(bias2))
	eps := float32(adam.eps)

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad().Data

		m := adam.m[param]
		v := adam.v[param]
		if m == nil {
			m = make([]float32, param.NumElems)
			v = make([]float32, param.NumElems)
			adam.m[param] = m
			adam.v[param] = v
		}

		for i, g := range grad {
			g += wd * param.Data[i]
			m[i] = b1*m[i] + (1-b1)*g
			v[i] = b2*v[i] + (1-b2)*g*g

			// param -= lr * m_hat / (sqrt(v_hat) + eps)
			denom := float32(math.Sqrt(float64(v[i])))*invSqrtBias2 + eps
			param.Data[i] -= stepSize * m[i] / denom
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}

// RMSProp scales each step by a running average of squared gradients,
// with optional heavy-ball momentum.
type RMSProp struct {
	parameters  []*tensor.Tensor
	lr          float64
	alpha       float64 // smoothing constant
	eps         float64
	momentum    float64
	weightDecay float64
	squareAvg   map[*tensor.Tensor][]float32
	buffers     map[*tensor.Tensor][]float32
	mutex       sync.RWMutex
}

// NewRMSProp creates a new RMSProp optimizer
func NewRMSProp(parameters []*tensor.Tensor, lr, alpha, eps, momentum, weightDecay float64) *RMSProp {
	return &RMSProp{
		parameters:  parameters,
		lr:          lr,
		alpha:       alpha,
		eps:         eps,
		momentum:    momentum,
		weightDecay: weightDecay,
		squareAvg:   make(map[*tensor.Tensor][]float32),
		buffers:     make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single optimization step
func (r *RMSProp) Step() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	lr := float32(r.lr)
	alpha := float32(r.alpha)
	eps := float32(r.eps)
	mom := float32(r.momentum)
	wd := float32(r.weightDecay)

	for _, param := range r.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad().Data

		sq := r.squareAvg[param]
		if sq == nil {
			sq = make([]float32, param.NumElems)
			r.squareAvg[param] = sq
		}
		var buf []float32
		if mom > 0 {
			if buf = r.buffers[param]; buf == nil {
				buf = make([]float32, param.NumElems)
				r.buffers[param] = buf
			}
		}

		for i, g := range grad {
			g += wd * param.Data[i]
			sq[i] = alpha*sq[i] + (1-alpha)*g*g
			update := g / (float32(math.Sqrt(float64(sq[i]))) + eps)
			if buf != nil {
				buf[i] = mom*buf[i] + update
				update = buf[i]
			}
			param.Data[i] -= lr * update
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (r *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(r.parameters)
}

// GetLR returns the current learning rate
func (r *RMSProp) GetLR() float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.lr
}

// SetLR sets the learning rate
func (r *RMSProp) SetLR(lr float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.lr = lr
}
