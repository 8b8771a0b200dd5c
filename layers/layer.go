package layers

import (
	"fmt"
	"strings"
)

// LayerType represents the kind of stage in an ordered model description
type LayerType int

const (
	Dense LayerType = iota
	Conv2D
	ConvTranspose2D
	ReLU
	Sigmoid
	Flatten
	Reshape
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case Conv2D:
		return "Conv2D"
	case ConvTranspose2D:
		return "ConvTranspose2D"
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case Flatten:
		return "Flatten"
	case Reshape:
		return "Reshape"
	default:
		return "Unknown"
	}
}

// LayerSpec describes one stage of a model.
// This is pure configuration - no execution logic
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec is a compiled, ordered list of stage descriptors. Shapes carry
// the batch dimension first; executors treat it as variable.
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct models stage by stage
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder. inputShape includes the
// batch dimension, e.g. [N, C, H, W].
func NewModelBuilder(inputShape []int) *ModelBuilder {
	shape := make([]int, len(inputShape))
	copy(shape, inputShape)
	return &ModelBuilder{
		layers:     make([]LayerSpec, 0),
		inputShape: shape,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	if layer.Parameters == nil {
		layer.Parameters = map[string]interface{}{}
	}
	mb.layers = append(mb.layers, layer)
	mb.compiled = false
	return mb
}

// AddDense adds a fully connected layer. The input size is computed during
// compilation by flattening every non-batch dimension.
func (mb *ModelBuilder) AddDense(outputSize int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    useBias,
		},
	})
}

// AddConv2D adds a square-kernel convolution
func (mb *ModelBuilder) AddConv2D(
	outputChannels, kernelSize, stride, padding int,
	useBias bool, name string,
) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	})
}

// AddConvTranspose2D adds a square-kernel transposed convolution.
// outputPadding adds rows and columns on one side of the output so that a
// strided convolution can be inverted exactly.
func (mb *ModelBuilder) AddConvTranspose2D(
	outputChannels, kernelSize, stride, padding, outputPadding int,
	useBias bool, name string,
) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: ConvTranspose2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"output_padding":  outputPadding,
			"use_bias":        useBias,
		},
	})
}

// AddReLU adds a ReLU activation to the model
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: ReLU, Name: name})
}

// AddSigmoid adds a Sigmoid activation to the model
func (mb *ModelBuilder) AddSigmoid(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Sigmoid, Name: name})
}

// AddFlatten collapses every non-batch dimension into one
func (mb *ModelBuilder) AddFlatten(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Flatten, Name: name})
}

// AddReshape reshapes each sample to shape (batch dimension excluded)
func (mb *ModelBuilder) AddReshape(shape []int, name string) *ModelBuilder {
	s := make([]int, len(shape))
	copy(s, shape)
	return mb.AddLayer(LayerSpec{
		Type: Reshape,
		Name: name,
		Parameters: map[string]interface{}{
			"shape": s,
		},
	})
}

// Compile compiles the model and computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if err := validateShape(mb.inputShape); err != nil {
		return nil, fmt.Errorf("invalid input shape: %w", err)
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: mb.inputShape,
	}

	for i, l := range mb.layers {
		params := make(map[string]interface{}, len(l.Parameters))
		for k, v := range l.Parameters {
			params[k] = v
		}
		l.Parameters = params
		model.Layers[i] = l
	}

	currentShape := mb.inputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]

		layer.InputShape = make([]int, len(currentShape))
		copy(layer.InputShape, currentShape)

		outputShape, paramShapes, paramCount, err := mb.computeLayerInfo(layer, currentShape)
		if err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %w", i, layer.Name, err)
		}
		if err := validateShape(outputShape); err != nil {
			return nil, fmt.Errorf("layer %d (%s) produces invalid shape %v: %w", i, layer.Name, outputShape, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount

		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

func (mb *ModelBuilder) computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Dense:
		return computeDenseInfo(layer, inputShape)
	case Conv2D:
		return computeConv2DInfo(layer, inputShape)
	case ConvTranspose2D:
		return computeConvTranspose2DInfo(layer, inputShape)
	case ReLU, Sigmoid:
		return computeActivationInfo(inputShape)
	case Flatten:
		return computeFlattenInfo(inputShape)
	case Reshape:
		return computeReshapeInfo(layer, inputShape)
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

func computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("dense layer requires at least 2D input")
	}

	outputSize, ok := layer.Parameters["output_size"].(int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("missing output_size parameter")
	}
	useBias := getBoolParam(layer.Parameters, "use_bias", true)

	// For 4D input [batch, channels, height, width]: input_size = channels * height * width
	inputSize := 1
	for i := 1; i < len(inputShape); i++ {
		inputSize *= inputShape[i]
	}
	layer.Parameters["input_size"] = inputSize

	outputShape := []int{inputShape[0], outputSize}

	// Weight matrix: [inputSize, outputSize]
	paramShapes := [][]int{{inputSize, outputSize}}
	paramCount := int64(inputSize) * int64(outputSize)

	if useBias {
		paramShapes = append(paramShapes, []int{outputSize})
		paramCount += int64(outputSize)
	}

	return outputShape, paramShapes, paramCount, nil
}

type convParams struct {
	outputChannels int
	kernelSize     int
	stride         int
	padding        int
	outputPadding  int
	useBias        bool
}

func readConvParams(layer *LayerSpec, inputShape []int) (convParams, error) {
	var p convParams
	if len(inputShape) != 4 {
		return p, fmt.Errorf("%s layer requires 4D input [batch, channels, height, width], got %v", layer.Type, inputShape)
	}

	var ok bool
	if p.outputChannels, ok = layer.Parameters["output_channels"].(int); !ok {
		return p, fmt.Errorf("missing output_channels parameter")
	}
	if p.kernelSize, ok = layer.Parameters["kernel_size"].(int); !ok {
		return p, fmt.Errorf("missing kernel_size parameter")
	}
	p.stride = getIntParam(layer.Parameters, "stride", 1)
	p.padding = getIntParam(layer.Parameters, "padding", 0)
	p.outputPadding = getIntParam(layer.Parameters, "output_padding", 0)
	p.useBias = getBoolParam(layer.Parameters, "use_bias", true)

	if p.outputChannels <= 0 || p.kernelSize <= 0 || p.stride <= 0 || p.padding < 0 || p.outputPadding < 0 {
		return p, fmt.Errorf("invalid convolution parameters %v", layer.Parameters)
	}
	if p.outputPadding >= p.stride {
		return p, fmt.Errorf("output_padding %d must be smaller than stride %d", p.outputPadding, p.stride)
	}

	layer.Parameters["input_channels"] = inputShape[1]
	return p, nil
}

func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	p, err := readConvParams(layer, inputShape)
	if err != nil {
		return nil, nil, 0, err
	}

	inputChannels := inputShape[1]
	outputHeight := (inputShape[2]+2*p.padding-p.kernelSize)/p.stride + 1
	outputWidth := (inputShape[3]+2*p.padding-p.kernelSize)/p.stride + 1

	outputShape := []int{inputShape[0], p.outputChannels, outputHeight, outputWidth}

	// Weight tensor: [outputChannels, inputChannels, kernelSize, kernelSize]
	paramShapes := [][]int{{p.outputChannels, inputChannels, p.kernelSize, p.kernelSize}}
	paramCount := int64(p.outputChannels * inputChannels * p.kernelSize * p.kernelSize)

	if p.useBias {
		paramShapes = append(paramShapes, []int{p.outputChannels})
		paramCount += int64(p.outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeConvTranspose2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	p, err := readConvParams(layer, inputShape)
	if err != nil {
		return nil, nil, 0, err
	}

	inputChannels := inputShape[1]
	outputHeight := (inputShape[2]-1)*p.stride - 2*p.padding + p.kernelSize + p.outputPadding
	outputWidth := (inputShape[3]-1)*p.stride - 2*p.padding + p.kernelSize + p.outputPadding

	outputShape := []int{inputShape[0], p.outputChannels, outputHeight, outputWidth}

	// Weight tensor: [inputChannels, outputChannels, kernelSize, kernelSize]
	paramShapes := [][]int{{inputChannels, p.outputChannels, p.kernelSize, p.kernelSize}}
	paramCount := int64(inputChannels * p.outputChannels * p.kernelSize * p.kernelSize)

	if p.useBias {
		paramShapes = append(paramShapes, []int{p.outputChannels})
		paramCount += int64(p.outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeActivationInfo(inputShape []int) ([]int, [][]int, int64, error) {
	// Activation layers don't change shape and have no parameters
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)

	return outputShape, [][]int{}, 0, nil
}

func computeFlattenInfo(inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("flatten requires a batch dimension and at least one feature dimension")
	}
	features := 1
	for _, d := range inputShape[1:] {
		features *= d
	}
	return []int{inputShape[0], features}, [][]int{}, 0, nil
}

func computeReshapeInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	target, ok := layer.Parameters["shape"].([]int)
	if !ok || len(target) == 0 {
		return nil, nil, 0, fmt.Errorf("missing shape parameter")
	}

	in, out := 1, 1
	for _, d := range inputShape[1:] {
		in *= d
	}
	for _, d := range target {
		out *= d
	}
	if in != out {
		return nil, nil, 0, fmt.Errorf("cannot reshape %d features into %v", in, target)
	}

	return append([]int{inputShape[0]}, target...), [][]int{}, 0, nil
}

// GetCompiledModel returns the compiled model (must call Compile first)
func (mb *ModelBuilder) GetCompiledModel() (*ModelSpec, error) {
	if !mb.compiled {
		return nil, fmt.Errorf("model not compiled - call Compile() first")
	}

	return mb.Compile() // Re-compile to get fresh copy
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Model Summary:\n")
	fmt.Fprintf(&b, "Input Shape: %v\n", ms.InputShape)
	fmt.Fprintf(&b, "Output Shape: %v\n", ms.OutputShape)
	fmt.Fprintf(&b, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&b, "Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		fmt.Fprintf(&b, "Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String())
		fmt.Fprintf(&b, "  Input:  %v\n", layer.InputShape)
		fmt.Fprintf(&b, "  Output: %v\n", layer.OutputShape)
		fmt.Fprintf(&b, "  Params: %d\n", layer.ParameterCount)
		b.WriteString("\n")
	}

	return b.String()
}

// Helper functions for parameter extraction
func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if val, exists := params[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}

// IntParam reads an integer stage parameter, falling back to defaultValue
func (ls LayerSpec) IntParam(key string, defaultValue int) int {
	return getIntParam(ls.Parameters, key, defaultValue)
}

// BoolParam reads a boolean stage parameter, falling back to defaultValue
func (ls LayerSpec) BoolParam(key string, defaultValue bool) bool {
	return getBoolParam(ls.Parameters, key, defaultValue)
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("empty shape")
	}
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("dimension %d has size %d", i, d)
		}
	}
	return nil
}
