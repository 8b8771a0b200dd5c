package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tsawler/go-latent/artifacts"
	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/checkpoints"
	"github.com/tsawler/go-latent/classifier"
	"github.com/tsawler/go-latent/config"
	"github.com/tsawler/go-latent/latent"
	"github.com/tsawler/go-latent/training"
)

type artifactWriter struct {
	dir      string
	runID    string
	cfg      *config.Config
	logger   *zap.Logger
	classes  map[int]string
	modelTag string
}

func (w artifactWriter) writeAll(ctx context.Context, model *autoencoder.Model, history *training.History, report classifier.Report, train, test *latent.Dataset) error {
	if err := w.writeCheckpoint(model, history); err != nil {
		return err
	}

	curves := artifacts.TrainingCurvesPlot(w.modelTag, history.TrainLoss, history.ValLoss)
	if err := artifacts.WritePlot(filepath.Join(w.dir, LossCurvesFile), curves); err != nil {
		return err
	}
	confusion := artifacts.ConfusionMatrixHeatmap(report.Model, report.Confusion, w.classes)
	if err := artifacts.WritePlot(filepath.Join(w.dir, ConfusionMatrixFile), confusion); err != nil {
		return err
	}

	if w.cfg.Output.ExportLatents {
		if err := artifacts.WriteLatents(filepath.Join(w.dir, TrainLatentsFile), train); err != nil {
			return err
		}
		if err := artifacts.WriteLatents(filepath.Join(w.dir, TestLatentsFile), test); err != nil {
			return err
		}
	}

	if w.cfg.Output.PlotServiceURL != "" {
		w.publish(ctx, []artifacts.PlotData{curves, confusion})
	}
	return nil
}

func (w artifactWriter) writeCheckpoint(model *autoencoder.Model, history *training.History) error {
	var state checkpoints.TrainingState
	state.Epoch = history.Len()
	state.LearningRate = w.cfg.Training.LearningRate
	state.Optimizer = w.cfg.Training.Optimizer
	if n := history.Len(); n > 0 {
		state.TrainLoss = history.TrainLoss[n-1]
		state.ValLoss = history.ValLoss[n-1]
	}

	ckpt := checkpoints.FromModel(model, state)
	ckpt.Metadata = checkpoints.CheckpointMetadata{
		Version:     "1.0.0",
		Framework:   "go-latent",
		CreatedAt:   time.Now().UTC(),
		RunID:       w.runID,
		Description: fmt.Sprintf("convolutional autoencoder, latent %d", model.LatentDim()),
	}

	path := filepath.Join(w.dir, CheckpointFile)
	if err := checkpoints.NewCheckpointSaver(checkpoints.FormatForPath(path)).SaveCheckpoint(ckpt, path); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// publish posts plots to the sidecar service. Failures are logged only.
func (w artifactWriter) publish(ctx context.Context, plots []artifacts.PlotData) {
	cfg := artifacts.DefaultPlottingServiceConfig()
	cfg.BaseURL = w.cfg.Output.PlotServiceURL
	ps := artifacts.NewPlottingService(cfg, w.logger)

	if err := ps.CheckHealth(ctx); err != nil {
		w.logger.Warn("plotting service unavailable", zap.String("url", cfg.BaseURL), zap.Error(err))
		return
	}
	for _, plot := range plots {
		resp, err := ps.SendPlotDataWithRetry(ctx, plot)
		if err != nil {
			w.logger.Warn("failed to publish plot", zap.String("plot_type", string(plot.PlotType)), zap.Error(err))
			continue
		}
		w.logger.Info("plot published", zap.String("plot_type", string(plot.PlotType)), zap.String("view_url", resp.ViewURL))
	}
}
