package config

const (
	defaultLatentDim      = 128
	defaultImageSize      = 512
	defaultNumEpochs      = 20
	defaultBatchSize      = 8
	defaultLearningRate   = 1e-3
	defaultOptimizer      = "adam"
	defaultMomentum       = 0.9
	defaultSeed           = 42
	defaultDevice         = "auto"
	defaultTrainRatio     = 0.70
	defaultValRatio       = 0.15
	defaultTestRatio      = 0.15
	defaultSplitSeed      = 42
	defaultClassifierC    = 1.0
	defaultClassifierIter = 1000
	defaultOutputDir      = "~/.local/share/latent-pipeline/runs"
	defaultStorePath      = "~/.local/share/latent-pipeline/runs.db"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

var defaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Default returns a Config populated with the built-in defaults
func Default() Config {
	return Config{
		Model: Model{
			LatentDim: defaultLatentDim,
			ImageSize: defaultImageSize,
		},
		Training: Training{
			NumEpochs:    defaultNumEpochs,
			BatchSize:    defaultBatchSize,
			LearningRate: defaultLearningRate,
			Optimizer:    defaultOptimizer,
			Momentum:     defaultMomentum,
			Seed:         defaultSeed,
			Device:       defaultDevice,
		},
		Data: Data{
			TrainRatio: defaultTrainRatio,
			ValRatio:   defaultValRatio,
			TestRatio:  defaultTestRatio,
			SplitSeed:  defaultSplitSeed,
			Extensions: append([]string(nil), defaultExtensions...),
		},
		Classifier: Classifier{
			C:       defaultClassifierC,
			MaxIter: defaultClassifierIter,
		},
		Output: Output{
			Dir:           defaultOutputDir,
			StorePath:     defaultStorePath,
			ExportLatents: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
