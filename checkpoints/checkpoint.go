package checkpoints

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/tensor"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Protobuf"
	default:
		return "Unknown"
	}
}

// FormatForPath picks the format from a file extension: ".pb" is protobuf,
// anything else JSON.
func FormatForPath(path string) CheckpointFormat {
	if len(path) > 3 && path[len(path)-3:] == ".pb" {
		return FormatProto
	}
	return FormatJSON
}

// Checkpoint is a trained autoencoder's weights plus the state it was trained to
type Checkpoint struct {
	Model         ModelInfo          `json:"model"`
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// ModelInfo holds what is needed to rebuild the topology
type ModelInfo struct {
	LatentDim int `json:"latent_dim"`
	ImageSize int `json:"image_size"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"` // "<stage>.weight" or "<stage>.bias"
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures where training stopped
type TrainingState struct {
	Epoch        int     `json:"epoch"` // epochs completed
	TrainLoss    float64 `json:"train_loss"`
	ValLoss      float64 `json:"val_loss"`
	LearningRate float64 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// FromModel snapshots the model's current parameters
func FromModel(m *autoencoder.Model, state TrainingState) *Checkpoint {
	named := m.NamedParameters()
	weights := make([]WeightTensor, len(named))
	for i, p := range named {
		data := make([]float32, len(p.Tensor.Data))
		copy(data, p.Tensor.Data)
		weights[i] = WeightTensor{
			Name:  p.Name,
			Shape: append([]int(nil), p.Tensor.Shape...),
			Data:  data,
		}
	}

	return &Checkpoint{
		Model:         ModelInfo{LatentDim: m.LatentDim(), ImageSize: m.ImageSize()},
		Weights:       weights,
		TrainingState: state,
	}
}

// Restore copies the checkpoint weights into m. Names, order and shapes
// must match exactly.
func (c *Checkpoint) Restore(m *autoencoder.Model) error {
	if m.LatentDim() != c.Model.LatentDim || m.ImageSize() != c.Model.ImageSize {
		return fmt.Errorf("%w: checkpoint is latent %d size %d, model is latent %d size %d",
			tensor.ErrShapeMismatch, c.Model.LatentDim, c.Model.ImageSize, m.LatentDim(), m.ImageSize())
	}
	named := m.NamedParameters()
	if len(named) != len(c.Weights) {
		return fmt.Errorf("%w: checkpoint has %d tensors, model has %d", tensor.ErrShapeMismatch, len(c.Weights), len(named))
	}
	for i, w := range c.Weights {
		p := named[i]
		if w.Name != p.Name {
			return fmt.Errorf("tensor %d: checkpoint has %q, model expects %q", i, w.Name, p.Name)
		}
		if !tensor.ShapesEqual(w.Shape, p.Tensor.Shape) || len(w.Data) != p.Tensor.NumElems {
			return fmt.Errorf("%w: %s is %v in checkpoint, %v in model", tensor.ErrShapeMismatch, w.Name, w.Shape, p.Tensor.Shape)
		}
	}
	for i, w := range c.Weights {
		copy(named[i].Tensor.Data, w.Data)
	}
	return nil
}

// NewModel builds a fresh model of the recorded topology and restores into it
func (c *Checkpoint) NewModel(device tensor.DeviceType) (*autoencoder.Model, error) {
	m, err := autoencoder.NewForImageSize(c.Model.ImageSize, autoencoder.Config{LatentDim: c.Model.LatentDim}, rand.New(rand.NewSource(0)), device)
	if err != nil {
		return nil, err
	}
	if err := c.Restore(m); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{format: format}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-latent"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now().UTC()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatProto:
		return os.WriteFile(path, marshalProto(checkpoint), 0o644)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatProto:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
		}
		return unmarshalProto(data)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}
