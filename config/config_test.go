package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/tsawler/go-latent/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load(filepath.Join(tempHome, "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != filepath.Join(tempHome, "absent.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}

	if cfg.Model.LatentDim != 128 || cfg.Training.NumEpochs != 20 || cfg.Training.BatchSize != 8 {
		t.Fatalf("unexpected core defaults: %+v %+v", cfg.Model, cfg.Training)
	}
	if cfg.Training.LearningRate != 1e-3 {
		t.Fatalf("unexpected learning rate %v", cfg.Training.LearningRate)
	}
	if cfg.Data.TrainRatio != 0.70 || cfg.Data.ValRatio != 0.15 || cfg.Data.TestRatio != 0.15 {
		t.Fatalf("unexpected split ratios: %+v", cfg.Data)
	}
	if cfg.Classifier.C != 1.0 || cfg.Classifier.MaxIter != 1000 {
		t.Fatalf("unexpected classifier defaults: %+v", cfg.Classifier)
	}
	wantDir := filepath.Join(tempHome, ".local", "share", "latent-pipeline", "runs")
	if cfg.Output.Dir != wantDir {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Output.Dir, wantDir)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[model]
latent_dim = 32

[training]
num_epochs = 3
optimizer = " SGD "
device = "CPU"

[data]
root = "images"
train_ratio = 0.8
val_ratio = 0.1
test_ratio = 0.1
extensions = ["PNG"]

[output]
plot_service_url = "http://localhost:8080/"

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Model.LatentDim != 32 || cfg.Training.NumEpochs != 3 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Model, cfg.Training)
	}
	if cfg.Training.BatchSize != 8 {
		t.Fatalf("unset key should keep default, got batch size %d", cfg.Training.BatchSize)
	}
	if cfg.Training.Optimizer != "sgd" || cfg.Training.Device != "cpu" {
		t.Fatalf("expected lowercased optimizer/device, got %q/%q", cfg.Training.Optimizer, cfg.Training.Device)
	}
	if !filepath.IsAbs(cfg.Data.Root) || filepath.Base(cfg.Data.Root) != "images" {
		t.Fatalf("expected absolute data root, got %q", cfg.Data.Root)
	}
	if len(cfg.Data.Extensions) != 1 || cfg.Data.Extensions[0] != ".png" {
		t.Fatalf("unexpected extensions %v", cfg.Data.Extensions)
	}
	if cfg.Output.PlotServiceURL != "http://localhost:8080" {
		t.Fatalf("unexpected plot url %q", cfg.Output.PlotServiceURL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[model]\nlatent_dims = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"latent dim", func(c *config.Config) { c.Model.LatentDim = 0 }, "latent_dim"},
		{"image size", func(c *config.Config) { c.Model.ImageSize = 100 }, "image_size"},
		{"epochs", func(c *config.Config) { c.Training.NumEpochs = 0 }, "num_epochs"},
		{"batch size", func(c *config.Config) { c.Training.BatchSize = -1 }, "batch_size"},
		{"learning rate", func(c *config.Config) { c.Training.LearningRate = 0 }, "learning_rate"},
		{"optimizer", func(c *config.Config) { c.Training.Optimizer = "adagrad" }, "optimizer"},
		{"device", func(c *config.Config) { c.Training.Device = "tpu" }, "device"},
		{"ratio range", func(c *config.Config) { c.Data.TestRatio = 0 }, "test_ratio"},
		{"ratio sum", func(c *config.Config) { c.Data.TrainRatio = 0.8 }, "sum to 1"},
		{"cache size", func(c *config.Config) { c.Data.CacheSize = -1 }, "cache_size"},
		{"classifier c", func(c *config.Config) { c.Classifier.C = 0 }, "classifier.c"},
		{"plot url", func(c *config.Config) { c.Output.PlotServiceURL = "localhost" }, "plot_service_url"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if parsed.Model.LatentDim != config.Default().Model.LatentDim {
		t.Fatalf("sample latent_dim %d differs from default", parsed.Model.LatentDim)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestTOML(t *testing.T) {
	cfg := config.Default()
	out, err := cfg.TOML()
	if err != nil {
		t.Fatalf("TOML failed: %v", err)
	}
	if !strings.Contains(out, "latent_dim = 128") {
		t.Fatalf("rendered config missing latent_dim:\n%s", out)
	}
}
