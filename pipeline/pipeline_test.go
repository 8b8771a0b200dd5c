package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"go.uber.org/zap/zaptest"

	"github.com/tsawler/go-latent/artifacts"
	"github.com/tsawler/go-latent/checkpoints"
	"github.com/tsawler/go-latent/config"
	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/runstore"
	"github.com/tsawler/go-latent/tensor"
	"github.com/tsawler/go-latent/training"
)

// twoToneImages builds n images whose class decides their brightness:
// class 0 near black, class 1 near white.
func twoToneImages(t *testing.T, n, size int) *dataset.TensorDataset {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	images, err := tensor.Zeros([]int{n, 3, size, size}, tensor.CPU)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	labels := make([]int, n)
	per := 3 * size * size
	for i := range labels {
		labels[i] = i % 2
		base := float32(0.1)
		if labels[i] == 1 {
			base = 0.9
		}
		for j := 0; j < per; j++ {
			images.Data[i*per+j] = base + (rng.Float32()-0.5)*0.1
		}
	}
	ds, err := dataset.NewTensorDataset(images, labels)
	if err != nil {
		t.Fatalf("NewTensorDataset failed: %v", err)
	}
	return ds
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Model.LatentDim = 4
	cfg.Model.ImageSize = 32
	cfg.Training.NumEpochs = 2
	cfg.Training.BatchSize = 4
	cfg.Training.Device = "cpu"
	cfg.Training.NumWorkers = 2
	cfg.Output.Dir = filepath.Join(dir, "runs")
	cfg.Output.StorePath = filepath.Join(dir, "runs.db")
	return &cfg
}

func openStore(t *testing.T, cfg *config.Config) *runstore.Store {
	t.Helper()
	store, err := runstore.Open(cfg.Output.StorePath)
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Data.CacheSize = 64
	store := openStore(t, cfg)
	var out bytes.Buffer

	runner, err := New(Options{
		Config: cfg,
		Logger: zaptest.NewLogger(t),
		Out:    &out,
		Store:  store,
		Source: twoToneImages(t, 40, 32),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("console report", func(t *testing.T) {
		text := out.String()
		for _, want := range []string{
			"Epoch [1/2]  Train Loss: ",
			"Epoch [2/2]  Train Loss: ",
			"Logistic Regression Classification F1 Score: ",
		} {
			if !strings.Contains(text, want) {
				t.Errorf("output missing %q:\n%s", want, text)
			}
		}
	})

	t.Run("result", func(t *testing.T) {
		if result.History.Len() != 2 {
			t.Errorf("history has %d epochs, expected 2", result.History.Len())
		}
		if result.Report.F1 < 0 || result.Report.F1 > 1 {
			t.Errorf("F1 = %v, expected a value in [0, 1]", result.Report.F1)
		}
		if len(result.Report.Predictions) != 40-28-6 {
			t.Errorf("%d predictions, expected one per test sample", len(result.Report.Predictions))
		}
	})

	t.Run("artifacts", func(t *testing.T) {
		for _, name := range []string{CheckpointFile, LossCurvesFile, ConfusionMatrixFile, TrainLatentsFile, TestLatentsFile} {
			if _, err := os.Stat(filepath.Join(result.RunDir, name)); err != nil {
				t.Errorf("missing artifact %s: %v", name, err)
			}
		}

		train, err := artifacts.ReadLatents(filepath.Join(result.RunDir, TrainLatentsFile))
		if err != nil {
			t.Fatalf("ReadLatents failed: %v", err)
		}
		if train.Len() != 28 || train.Dim() != 4 {
			t.Errorf("train latents are %dx%d, expected 28x4", train.Len(), train.Dim())
		}

		path := filepath.Join(result.RunDir, CheckpointFile)
		ckpt, err := checkpoints.NewCheckpointSaver(checkpoints.FormatForPath(path)).LoadCheckpoint(path)
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if ckpt.Metadata.RunID != result.RunID || ckpt.TrainingState.Epoch != 2 {
			t.Errorf("unexpected checkpoint metadata %+v state %+v", ckpt.Metadata, ckpt.TrainingState)
		}
		if _, err := ckpt.NewModel(tensor.CPU); err != nil {
			t.Errorf("checkpoint does not restore: %v", err)
		}
	})

	t.Run("run record", func(t *testing.T) {
		run, err := store.Get(ctx, result.RunID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if run.Status != runstore.StatusCompleted {
			t.Errorf("status = %s, expected completed", run.Status)
		}
		if run.F1 == nil || *run.F1 != result.Report.F1 {
			t.Errorf("stored F1 = %v, expected %v", run.F1, result.Report.F1)
		}
		epochs, err := store.Epochs(ctx, result.RunID)
		if err != nil {
			t.Fatalf("Epochs failed: %v", err)
		}
		if len(epochs) != 2 || epochs[1].TrainLoss != result.History.TrainLoss[1] {
			t.Errorf("stored epochs %+v do not match history", epochs)
		}
	})
}

func TestRunWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.NumEpochs = 1
	cfg.Output.ExportLatents = false

	runner, err := New(Options{Config: cfg, Out: &bytes.Buffer{}, Source: twoToneImages(t, 20, 32)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.RunID == "" {
		t.Error("expected a generated run id")
	}
	if _, err := os.Stat(filepath.Join(result.RunDir, TrainLatentsFile)); !os.IsNotExist(err) {
		t.Errorf("latents exported despite export_latents = false: %v", err)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store := openStore(t, cfg)

	// two samples leave the validation partition empty
	runner, err := New(Options{Config: cfg, Out: &bytes.Buffer{}, Store: store, Source: twoToneImages(t, 2, 32)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := runner.Run(ctx); !errors.Is(err, training.ErrEmptyPartition) {
		t.Fatalf("expected ErrEmptyPartition, got %v", err)
	}

	runs, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != runstore.StatusFailed || runs[0].Error == "" {
		t.Errorf("expected one failed run with an error, got %+v", runs)
	}
}

func TestRunLocked(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	held := flock.New(filepath.Join(cfg.Output.Dir, lockFile))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("could not take lock: %v", err)
	}
	defer held.Unlock()

	runner, err := New(Options{Config: cfg, Out: &bytes.Buffer{}, Source: twoToneImages(t, 10, 32)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing config")
	}
	cfg := testConfig(t)
	cfg.Model.ImageSize = 30
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Error("expected error for image size not divisible by 32")
	}
}

func TestRunAcceleratorUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Device = "accelerator"
	runner, err := New(Options{Config: cfg, Out: &bytes.Buffer{}, Source: twoToneImages(t, 10, 32)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, tensor.ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}
