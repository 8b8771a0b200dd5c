// Package config loads, normalizes, and validates the pipeline's TOML
// configuration.
//
// A missing configuration file is not an error: Load falls back to Default so
// a bare `latent-pipeline run --data <dir>` works out of the box. Paths accept
// a leading `~` and are expanded to absolute form.
package config
