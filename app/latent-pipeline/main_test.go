package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	base       string
	configPath string
	dataRoot   string
}

// setupCLITestEnv isolates HOME and writes a small-model config with a
// two-class image folder.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	env := &cliTestEnv{
		base:       base,
		configPath: filepath.Join(base, "config.toml"),
		dataRoot:   filepath.Join(base, "images"),
	}
	for class, shade := range map[string]uint8{"dark": 20, "light": 230} {
		dir := filepath.Join(env.dataRoot, class)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		for i := 0; i < 10; i++ {
			v := shade + uint8(i)
			writePNG(t, filepath.Join(dir, fmt.Sprintf("%02d.png", i)), color.RGBA{v, v, v, 255}, 40, 40)
		}
	}

	content := fmt.Sprintf(`[model]
latent_dim = 4
image_size = 32

[training]
num_epochs = 1
batch_size = 4
device = "cpu"

[data]
root = %q

[output]
dir = %q
store_path = %q

[logging]
level = "warn"
`, env.dataRoot, filepath.Join(base, "runs"), filepath.Join(base, "runs.db"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func writePNG(t *testing.T, path string, c color.Color, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInit(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.base, "new", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "latent_dim = 4")
}

func TestSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"summary"}, env.configPath)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	requireContains(t, out, "Total Parameters")
	requireContains(t, out, "CPU")
}

func TestInvalidConfigFails(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[model]\nlatent_dim = -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"summary"}, env.configPath); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestRunAndListRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Epoch [1/1]  Train Loss: ")
	requireContains(t, out, "Logistic Regression Classification F1 Score: ")
	requireContains(t, out, "Artifacts written to ")

	out, _, err = runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "Status")
	requireContains(t, out, "Latent")

	t.Run("no dataset", func(t *testing.T) {
		if _, _, err := runCLI(t, []string{"run", "--data", filepath.Join(env.base, "missing")}, env.configPath); err == nil {
			t.Fatal("expected error for missing dataset root")
		}
	})
}

func TestRunsShowUnknown(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"runs", "show", "nope"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}
