package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test solver defaults
	if cfg.Solver.MaxIterations != 16 {
		t.Errorf("expected max iterations 16, got %d", cfg.Solver.MaxIterations)
	}
	if cfg.Solver.Tolerance != 0.004 {
		t.Errorf("expected tolerance 0.004, got %f", cfg.Solver.Tolerance)
	}
	if cfg.Solver.Workers != 0 {
		t.Errorf("expected workers 0, got %d", cfg.Solver.Workers)
	}

	// Test output defaults
	if cfg.Output.Format != FormatText {
		t.Errorf("expected format text, got %s", cfg.Output.Format)
	}
	if cfg.Output.Plot != "" {
		t.Errorf("expected no plot, got %s", cfg.Output.Plot)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}

	opt := cfg.Optimizer()
	if opt.MaxIterations != 16 || opt.Tolerance != 0.004 {
		t.Errorf("unexpected optimizer %+v", opt)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contactsolve.yaml")
	data := `
solver:
  max_iterations: 32
  tolerance: 0.001
output:
  format: yaml
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Solver.MaxIterations != 32 {
		t.Errorf("expected max iterations 32, got %d", cfg.Solver.MaxIterations)
	}
	if cfg.Solver.Tolerance != 0.001 {
		t.Errorf("expected tolerance 0.001, got %f", cfg.Solver.Tolerance)
	}
	if cfg.Output.Format != FormatYAML {
		t.Errorf("expected format yaml, got %s", cfg.Output.Format)
	}
	// Values not in the file keep their defaults.
	if cfg.Solver.Margin != 0.01 {
		t.Errorf("expected default margin 0.01, got %f", cfg.Solver.Margin)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	data := "solver:\n  max_iterations: 8\n  workers: 2\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	setFlag(t, "config", path)
	setFlag(t, "workers", "5")
	setFlag(t, "debug", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Solver.MaxIterations != 8 {
		t.Errorf("expected max iterations 8 from file, got %d", cfg.Solver.MaxIterations)
	}
	if cfg.Solver.Workers != 5 {
		t.Errorf("expected workers 5 from flag, got %d", cfg.Solver.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level from flag, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	setFlag(t, "config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Solver.Tolerance = -1
	cfg.Output.Format = "csv"
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"solver.tolerance", "output.format", "logging.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestWrite(t *testing.T) {
	cfg := Default()
	cfg.Output.Plot = "convergence.png"

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	var got Config
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if got != *cfg {
		t.Errorf("expected %+v, got %+v", *cfg, got)
	}
}

// setFlag sets a command-line flag for the duration of the test.
func setFlag(t *testing.T, name, value string) {
	t.Helper()
	f := flag.Lookup(name)
	if f == nil {
		t.Fatalf("flag %s not registered", name)
	}
	old := f.Value.String()
	if err := flag.Set(name, value); err != nil {
		t.Fatalf("failed to set flag %s: %v", name, err)
	}
	t.Cleanup(func() { _ = flag.Set(name, old) })
}
