package training

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/engine"
	"github.com/tsawler/go-latent/tensor"
)

var (
	// ErrEmptyPartition is returned before any epoch when the training or
	// validation partition holds no samples.
	ErrEmptyPartition = errors.New("empty dataset partition")

	// ErrNonFiniteLoss aborts a run whose loss overflowed or became NaN
	ErrNonFiniteLoss = errors.New("non-finite loss")
)

// Model is the part of the autoencoder the trainer drives
type Model interface {
	Forward(ctx engine.ExecContext, x *tensor.Tensor) (autoencoder.Output, *autoencoder.Trace, error)
	Backward(trace *autoencoder.Trace, gradReconstruction *tensor.Tensor) error
	Parameters() []*tensor.Tensor
	Device() tensor.DeviceType
}

// TrainerConfig holds configuration for training
type TrainerConfig struct {
	Epochs       int
	BatchSize    int
	Device       tensor.DeviceType
	Seed         int64 // drives the per-epoch shuffle
	NumWorkers   int   // concurrent sample decoders per batch
	ShowProgress bool
}

// Trainer runs the reconstruction training loop
type Trainer struct {
	model     Model
	optimizer Optimizer
	criterion Loss
	config    TrainerConfig
	logger    *zap.Logger
	out       io.Writer
	onEpoch   func(EpochLoss) error
}

// NewTrainer creates a new Trainer. Epoch report lines go to out.
func NewTrainer(model Model, optimizer Optimizer, criterion Loss, config TrainerConfig, logger *zap.Logger, out io.Writer) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Trainer{
		model:     model,
		optimizer: optimizer,
		criterion: criterion,
		config:    config,
		logger:    logger,
		out:       out,
	}
}

// OnEpoch registers a callback invoked after each epoch is recorded. An
// error from the callback aborts the run.
func (t *Trainer) OnEpoch(fn func(EpochLoss) error) {
	t.onEpoch = fn
}

// Fit trains for the configured number of epochs. Every failure aborts the
// run; the partial history is returned alongside the error.
func (t *Trainer) Fit(train, val dataset.Dataset) (*History, error) {
	if err := t.validate(train, val); err != nil {
		return nil, err
	}

	trainLoader, err := NewDataLoader(train, t.config.BatchSize, true, rand.New(rand.NewSource(t.config.Seed)), t.config.NumWorkers, t.config.Device)
	if err != nil {
		return nil, err
	}
	valLoader, err := NewDataLoader(val, t.config.BatchSize, false, nil, t.config.NumWorkers, t.config.Device)
	if err != nil {
		return nil, err
	}

	t.logger.Info("starting training",
		zap.Int("epochs", t.config.Epochs),
		zap.Int("batch_size", t.config.BatchSize),
		zap.Int("train_samples", train.Len()),
		zap.Int("val_samples", val.Len()),
		zap.Float64("learning_rate", t.optimizer.GetLR()),
		zap.Stringer("device", t.config.Device),
	)

	history := &History{}
	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		start := time.Now()

		trainLoss, err := t.trainEpoch(trainLoader, epoch)
		if err != nil {
			return history, fmt.Errorf("training epoch %d failed: %w", epoch+1, err)
		}

		valLoss, err := t.validateEpoch(valLoader)
		if err != nil {
			return history, fmt.Errorf("validation epoch %d failed: %w", epoch+1, err)
		}

		record := EpochLoss{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, Duration: time.Since(start)}
		history.Append(record)
		t.printEpochSummary(record)

		t.logger.Debug("epoch complete",
			zap.Int("epoch", epoch+1),
			zap.Float64("train_loss", trainLoss),
			zap.Float64("val_loss", valLoss),
			zap.Duration("duration", record.Duration),
		)

		if t.onEpoch != nil {
			if err := t.onEpoch(record); err != nil {
				return history, fmt.Errorf("epoch %d callback: %w", epoch+1, err)
			}
		}
	}

	return history, nil
}

func (t *Trainer) validate(train, val dataset.Dataset) error {
	if t.config.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", t.config.Epochs)
	}
	if t.config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", t.config.BatchSize)
	}
	if train == nil || train.Len() == 0 {
		return fmt.Errorf("%w: training partition", ErrEmptyPartition)
	}
	if val == nil || val.Len() == 0 {
		return fmt.Errorf("%w: validation partition", ErrEmptyPartition)
	}
	if t.model.Device() != t.config.Device {
		return fmt.Errorf("%w: model on %s, data on %s", tensor.ErrDeviceMismatch, t.model.Device(), t.config.Device)
	}
	return nil
}

// trainEpoch runs one optimisation pass over a shuffled loader and returns
// the per-sample mean loss.
func (t *Trainer) trainEpoch(loader *DataLoader, epoch int) (float64, error) {
	ctx := engine.TrainContext(t.config.Device)
	loader.Reset()

	var progress *ProgressBar
	if t.config.ShowProgress {
		progress = NewProgressBar(t.out, fmt.Sprintf("Epoch %d/%d", epoch+1, t.config.Epochs), loader.Len())
	}

	var totalLoss float64
	var totalSamples, batchCount int

	for {
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		if batch == nil {
			break
		}

		t.optimizer.ZeroGrad()

		out, trace, err := t.model.Forward(ctx, batch.Data)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %w", err)
		}

		// Self-supervised: the input is the target
		loss, err := t.criterion.Forward(out.Reconstruction, batch.Data)
		if err != nil {
			return 0, fmt.Errorf("loss computation failed: %w", err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, fmt.Errorf("%w: batch %d", ErrNonFiniteLoss, batchCount+1)
		}

		grad, err := t.criterion.Backward(out.Reconstruction, batch.Data)
		if err != nil {
			return 0, fmt.Errorf("loss gradient failed: %w", err)
		}
		if err := t.model.Backward(trace, grad); err != nil {
			return 0, fmt.Errorf("backward pass failed: %w", err)
		}
		if err := t.optimizer.Step(); err != nil {
			return 0, fmt.Errorf("optimizer step failed: %w", err)
		}

		n := batch.Size()
		totalLoss += loss * float64(n)
		totalSamples += n
		batchCount++

		if progress != nil {
			progress.Update(batchCount, map[string]float64{"loss": totalLoss / float64(totalSamples)})
		}
	}
	if progress != nil {
		progress.Finish()
	}

	return totalLoss / float64(totalSamples), nil
}

// validateEpoch evaluates the fixed-order validation loader without
// recording a trace.
func (t *Trainer) validateEpoch(loader *DataLoader) (float64, error) {
	loss, err := Evaluate(t.model, t.criterion, loader, t.config.Device)
	if err != nil {
		return 0, err
	}
	return loss, nil
}

// Evaluate returns the per-sample mean reconstruction loss of loader in an
// evaluation context.
func Evaluate(model Model, criterion Loss, loader *DataLoader, device tensor.DeviceType) (float64, error) {
	ctx := engine.EvalContext(device)
	loader.Reset()

	var totalLoss float64
	var totalSamples int
	for {
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		if batch == nil {
			break
		}

		out, _, err := model.Forward(ctx, batch.Data)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %w", err)
		}
		loss, err := criterion.Forward(out.Reconstruction, batch.Data)
		if err != nil {
			return 0, fmt.Errorf("loss computation failed: %w", err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, ErrNonFiniteLoss
		}

		totalLoss += loss * float64(batch.Size())
		totalSamples += batch.Size()
	}
	if totalSamples == 0 {
		return 0, ErrEmptyPartition
	}
	return totalLoss / float64(totalSamples), nil
}

// printEpochSummary writes the per-epoch report line
func (t *Trainer) printEpochSummary(e EpochLoss) {
	fmt.Fprintf(t.out, "Epoch [%d/%d]  Train Loss: %.4f  |  Val Loss: %.4f\n",
		e.Epoch+1, t.config.Epochs, e.TrainLoss, e.ValLoss)
}
