package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Model contains the autoencoder shape.
type Model struct {
	LatentDim int `toml:"latent_dim"`
	ImageSize int `toml:"image_size"` // square input side, divisible by 32
}

// Training contains the reconstruction training loop settings.
type Training struct {
	NumEpochs    int     `toml:"num_epochs"`
	BatchSize    int     `toml:"batch_size"`
	LearningRate float64 `toml:"learning_rate"`
	Optimizer    string  `toml:"optimizer"` // adam, sgd or rmsprop
	Momentum     float64 `toml:"momentum"`  // sgd and rmsprop
	Seed         int64   `toml:"seed"`
	Device       string  `toml:"device"` // auto, cpu or accelerator
	NumWorkers   int     `toml:"num_workers"`
}

// Data contains the image source and partition ratios.
type Data struct {
	Root       string   `toml:"root"`
	TrainRatio float64  `toml:"train_ratio"`
	ValRatio   float64  `toml:"val_ratio"`
	TestRatio  float64  `toml:"test_ratio"`
	SplitSeed  int64    `toml:"split_seed"`
	Extensions []string `toml:"extensions"`
	CacheSize  int      `toml:"cache_size"` // decoded samples kept in memory, 0 disables
}

// Classifier contains the downstream logistic regression settings.
type Classifier struct {
	C       float64 `toml:"c"`
	MaxIter int     `toml:"max_iter"`
}

// Output contains where run artifacts and the run history go.
type Output struct {
	Dir            string `toml:"dir"`
	StorePath      string `toml:"store_path"`
	PlotServiceURL string `toml:"plot_service_url"`
	ExportLatents  bool   `toml:"export_latents"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline.
//
// Configuration sections by subsystem:
//   - Model: latent dimensionality
//   - Training: epochs, batching, optimizer and device
//   - Data: image folder and split ratios
//   - Classifier: regularisation and iteration budget
//   - Output: artifact directory, run store and plotting sidecar
//   - Logging: log format and level
type Config struct {
	Model      Model      `toml:"model"`
	Training   Training   `toml:"training"`
	Data       Data       `toml:"data"`
	Classifier Classifier `toml:"classifier"`
	Output     Output     `toml:"output"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/latent-pipeline/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("latent-pipeline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the artifact directory and the run store's parent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Output.Dir, filepath.Dir(c.Output.StorePath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TOML renders the configuration as recorded alongside a run.
func (c *Config) TOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
