// Package pipeline wires the end-to-end run: train the autoencoder, extract
// latents for the train and test partitions, fit the classifier and report
// its weighted F1. Artifacts and run records are written along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/classifier"
	"github.com/tsawler/go-latent/config"
	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/latent"
	"github.com/tsawler/go-latent/runstore"
	"github.com/tsawler/go-latent/tensor"
	"github.com/tsawler/go-latent/training"
)

// ErrLocked is returned when another process holds the output directory
var ErrLocked = errors.New("output directory is locked by another run")

// Artifact file names inside a run directory
const (
	CheckpointFile      = "model.pb"
	LossCurvesFile      = "loss_curves.json"
	ConfusionMatrixFile = "confusion_matrix.json"
	TrainLatentsFile    = "latents_train.pb"
	TestLatentsFile     = "latents_test.pb"
	lockFile            = "latent-pipeline.lock"
)

// Options configures a Runner. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	Out    io.Writer // console report, stdout when nil

	// Store records the run when set
	Store *runstore.Store

	// Source replaces the image folder at Config.Data.Root
	Source dataset.Dataset
}

// Result summarises a finished run
type Result struct {
	RunID   string
	RunDir  string
	History *training.History
	Report  classifier.Report
}

// Runner executes pipeline runs
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
	store  *runstore.Store
	source dataset.Dataset
}

// New validates opts and returns a Runner
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline requires a config")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		cfg:    opts.Config,
		logger: logger,
		out:    out,
		store:  opts.Store,
		source: opts.Source,
	}, nil
}

// Run executes one full pipeline run. The output directory is locked for
// the duration of the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	device, err := tensor.ParseDevice(r.cfg.Training.Device)
	if err != nil {
		return nil, err
	}

	source, err := r.openSource()
	if err != nil {
		return nil, err
	}
	names := classNames(source)
	var cache *dataset.CachedDataset
	if r.cfg.Data.CacheSize > 0 {
		cache = dataset.NewCachedDataset(source, r.cfg.Data.CacheSize)
		source = cache
	}
	parts, err := dataset.Split(source, dataset.Ratios{
		Train: r.cfg.Data.TrainRatio,
		Val:   r.cfg.Data.ValRatio,
		Test:  r.cfg.Data.TestRatio,
	}, r.cfg.Data.SplitSeed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	r.logger.Info("dataset split",
		zap.Int("train", parts.Train.Len()),
		zap.Int("val", parts.Val.Len()),
		zap.Int("test", parts.Test.Len()),
	)

	if err := os.MkdirAll(r.cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(r.cfg.Output.Dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release output lock", zap.Error(err))
		}
	}()

	runID, err := r.startRun(ctx, device)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("run_id", runID))

	result, err := r.execute(ctx, logger, runID, device, names, parts)
	if cache != nil {
		logger.Debug("sample cache", zap.Stringer("stats", cache.Stats()))
	}
	if err != nil {
		if r.store != nil {
			if ferr := r.store.Fail(context.WithoutCancel(ctx), runID, err); ferr != nil {
				logger.Warn("failed to record run failure", zap.Error(ferr))
			}
		}
		logger.Error("run failed", zap.Error(err))
		return nil, err
	}

	if r.store != nil {
		if err := r.store.Complete(ctx, runID, result.Report.F1); err != nil {
			return result, fmt.Errorf("record run: %w", err)
		}
	}
	logger.Info("run completed", zap.Float64("f1", result.Report.F1), zap.String("dir", result.RunDir))
	return result, nil
}

func (r *Runner) openSource() (dataset.Dataset, error) {
	if r.source != nil {
		return r.source, nil
	}
	folder, err := dataset.NewImageFolder(r.cfg.Data.Root, r.cfg.Model.ImageSize, r.cfg.Data.Extensions)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	r.logger.Info("dataset loaded",
		zap.String("root", r.cfg.Data.Root),
		zap.Int("samples", folder.Len()),
		zap.Int("classes", folder.NumClasses()),
	)
	return folder, nil
}

func (r *Runner) startRun(ctx context.Context, device tensor.DeviceType) (string, error) {
	if r.store == nil {
		return uuid.NewString(), nil
	}
	configTOML, err := r.cfg.TOML()
	if err != nil {
		return "", err
	}
	run, err := r.store.Start(ctx, device.String(), r.cfg.Model.LatentDim, configTOML)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return run.ID, nil
}

func (r *Runner) execute(ctx context.Context, logger *zap.Logger, runID string, device tensor.DeviceType, names map[int]string, parts dataset.Partitions) (*Result, error) {
	runDir := filepath.Join(r.cfg.Output.Dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	model, err := autoencoder.NewForImageSize(
		r.cfg.Model.ImageSize,
		autoencoder.Config{LatentDim: r.cfg.Model.LatentDim},
		rand.New(rand.NewSource(r.cfg.Training.Seed)),
		device,
	)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	opt, err := training.NewOptimizer(training.OptimizerConfig{
		Name:         r.cfg.Training.Optimizer,
		LearningRate: r.cfg.Training.LearningRate,
		Momentum:     r.cfg.Training.Momentum,
	}, model.Parameters())
	if err != nil {
		return nil, err
	}

	trainer := training.NewTrainer(model, opt, training.NewMSELoss("mean"), training.TrainerConfig{
		Epochs:       r.cfg.Training.NumEpochs,
		BatchSize:    r.cfg.Training.BatchSize,
		Device:       device,
		Seed:         r.cfg.Training.Seed,
		NumWorkers:   r.cfg.Training.NumWorkers,
		ShowProgress: training.IsTerminal(r.out),
	}, logger, r.out)
	trainer.OnEpoch(func(e training.EpochLoss) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.store == nil {
			return nil
		}
		return r.store.RecordEpoch(ctx, runID, runstore.Epoch{
			Epoch:     e.Epoch,
			TrainLoss: e.TrainLoss,
			ValLoss:   e.ValLoss,
			Duration:  e.Duration,
		})
	})

	history, err := trainer.Fit(parts.Train, parts.Val)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	fmt.Fprintln(r.out, history.Table())

	trainLatents, err := latent.Extract(model, parts.Train, r.cfg.Training.BatchSize, device)
	if err != nil {
		return nil, fmt.Errorf("extract train latents: %w", err)
	}
	testLatents, err := latent.Extract(model, parts.Test, r.cfg.Training.BatchSize, device)
	if err != nil {
		return nil, fmt.Errorf("extract test latents: %w", err)
	}

	lr := classifier.NewLogisticRegression()
	lr.C = r.cfg.Classifier.C
	lr.MaxIter = r.cfg.Classifier.MaxIter
	report, err := classifier.Evaluate(lr, trainLatents, testLatents, model.LatentDim())
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	fmt.Fprintln(r.out, report.String())
	logger.Debug("classifier fitted",
		zap.Int("iterations", lr.Iterations()),
		zap.Float64("accuracy", report.Accuracy),
	)

	result := &Result{RunID: runID, RunDir: runDir, History: history, Report: report}
	w := artifactWriter{
		dir:      runDir,
		runID:    runID,
		cfg:      r.cfg,
		logger:   logger,
		classes:  names,
		modelTag: fmt.Sprintf("autoencoder-%d", model.LatentDim()),
	}
	if err := w.writeAll(ctx, model, history, report, trainLatents, testLatents); err != nil {
		return nil, err
	}
	return result, nil
}

// classNames maps labels to names when the source knows them
func classNames(source dataset.Dataset) map[int]string {
	named, ok := source.(interface{ ClassNames() []string })
	if !ok {
		return nil
	}
	names := make(map[int]string)
	for i, n := range named.ClassNames() {
		names[i] = n
	}
	return names
}
