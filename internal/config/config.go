// Package config handles contactsolve configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/soypat/contact"
	"gopkg.in/yaml.v3"
)

// Config holds all contactsolve settings.
type Config struct {
	Solver  SolverConfig  `yaml:"solver"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
}

// SolverConfig holds broad and narrow phase settings.
type SolverConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	Workers       int     `yaml:"workers"` // 0 uses every CPU
	Margin        float64 `yaml:"margin"`  // broad phase box fattening
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// OutputConfig holds result output settings.
type OutputConfig struct {
	Format string `yaml:"format"` // text or yaml
	Plot   string `yaml:"plot"`   // convergence plot path, empty disables
}

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			MaxIterations: contact.DefaultMaxIterations,
			Tolerance:     contact.DefaultTolerance,
			Workers:       0,
			Margin:        0.01,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Output: OutputConfig{
			Format: FormatText,
		},
	}
}

// Optimizer returns the closest point optimizer configured by c.
func (c *Config) Optimizer() contact.Optimizer {
	return contact.Optimizer{
		MaxIterations: c.Solver.MaxIterations,
		Tolerance:     c.Solver.Tolerance,
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Solver.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("solver.tolerance must be non negative, got %g", c.Solver.Tolerance))
	}
	if c.Solver.Margin < 0 {
		errs = append(errs, fmt.Errorf("solver.margin must be non negative, got %g", c.Solver.Margin))
	}
	if c.Solver.Workers < 0 {
		errs = append(errs, fmt.Errorf("solver.workers must be non negative, got %d", c.Solver.Workers))
	}
	switch c.Output.Format {
	case FormatText, FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("output.format must be %q or %q, got %q", FormatText, FormatYAML, c.Output.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q unknown", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Write encodes the config as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
