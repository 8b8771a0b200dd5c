package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTraining()
	c.normalizeData()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Data.Root, err = expandPath(strings.TrimSpace(c.Data.Root)); err != nil {
		return fmt.Errorf("data.root: %w", err)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if strings.TrimSpace(c.Output.StorePath) == "" {
		c.Output.StorePath = defaultStorePath
	}
	if c.Output.StorePath, err = expandPath(c.Output.StorePath); err != nil {
		return fmt.Errorf("output.store_path: %w", err)
	}
	c.Output.PlotServiceURL = strings.TrimRight(strings.TrimSpace(c.Output.PlotServiceURL), "/")
	return nil
}

func (c *Config) normalizeTraining() {
	c.Training.Optimizer = strings.ToLower(strings.TrimSpace(c.Training.Optimizer))
	if c.Training.Optimizer == "" {
		c.Training.Optimizer = defaultOptimizer
	}
	c.Training.Device = strings.ToLower(strings.TrimSpace(c.Training.Device))
	if c.Training.Device == "" {
		c.Training.Device = defaultDevice
	}
}

func (c *Config) normalizeData() {
	if len(c.Data.Extensions) == 0 {
		c.Data.Extensions = append([]string(nil), defaultExtensions...)
	}
	for i, ext := range c.Data.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Data.Extensions[i] = ext
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
