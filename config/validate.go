package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"

	"go.uber.org/zap/zapcore"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateData(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateModel() error {
	if c.Model.LatentDim <= 0 {
		return errors.New("model.latent_dim must be positive")
	}
	if c.Model.ImageSize <= 0 || c.Model.ImageSize%32 != 0 {
		return fmt.Errorf("model.image_size must be a positive multiple of 32, got %d", c.Model.ImageSize)
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	if t.NumEpochs <= 0 {
		return errors.New("training.num_epochs must be positive")
	}
	if t.BatchSize <= 0 {
		return errors.New("training.batch_size must be positive")
	}
	if t.LearningRate <= 0 || math.IsNaN(t.LearningRate) || math.IsInf(t.LearningRate, 0) {
		return errors.New("training.learning_rate must be a positive number")
	}
	if t.NumWorkers < 0 {
		return errors.New("training.num_workers must not be negative")
	}
	switch t.Optimizer {
	case "adam", "sgd", "rmsprop":
	default:
		return fmt.Errorf("training.optimizer must be adam, sgd or rmsprop, got %q", t.Optimizer)
	}
	if t.Momentum < 0 || t.Momentum >= 1 {
		return errors.New("training.momentum must be in [0, 1)")
	}
	switch t.Device {
	case "auto", "cpu", "accelerator", "gpu":
	default:
		return fmt.Errorf("training.device must be auto, cpu or accelerator, got %q", t.Device)
	}
	return nil
}

func (c *Config) validateData() error {
	d := c.Data
	for name, r := range map[string]float64{"train_ratio": d.TrainRatio, "val_ratio": d.ValRatio, "test_ratio": d.TestRatio} {
		if r <= 0 || r >= 1 {
			return fmt.Errorf("data.%s must be in (0, 1), got %v", name, r)
		}
	}
	if sum := d.TrainRatio + d.ValRatio + d.TestRatio; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("data ratios must sum to 1, got %v", sum)
	}
	if d.CacheSize < 0 {
		return errors.New("data.cache_size must not be negative")
	}
	for _, ext := range d.Extensions {
		if ext == "" || ext == "." {
			return errors.New("data.extensions must not contain empty entries")
		}
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.C <= 0 {
		return errors.New("classifier.c must be positive")
	}
	if c.Classifier.MaxIter <= 0 {
		return errors.New("classifier.max_iter must be positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.PlotServiceURL == "" {
		return nil
	}
	u, err := url.Parse(c.Output.PlotServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("output.plot_service_url must be an http(s) URL, got %q", c.Output.PlotServiceURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
