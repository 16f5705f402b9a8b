package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile       = flag.String("log-file", "", "Also write logs to this rotated file")
	flagMaxIterations = flag.Int("max-iterations", -1, "Closest point iteration cap, 0 evaluates the initial guess only")
	flagTolerance     = flag.Float64("tolerance", -1, "Convergence tolerance")
	flagWorkers       = flag.Int("workers", -1, "Narrow phase workers, 0 uses every CPU")
	flagMargin        = flag.Float64("margin", -1, "Broad phase margin")
	flagFormat        = flag.String("format", "", "Output format: text or yaml")
	flagPlot          = flag.String("plot", "", "Write a convergence plot to this PNG/SVG/PDF file")
	flagPrintConfig   = flag.Bool("print-config", false, "Print the effective config as YAML and exit")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// PrintConfig reports whether --print-config was given.
func PrintConfig() bool {
	return *flagPrintConfig
}

// applyFlags applies CLI flag overrides to the config.
// Negative numeric flags mean unset.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagMaxIterations >= 0 {
		cfg.Solver.MaxIterations = *flagMaxIterations
	}
	if *flagTolerance >= 0 {
		cfg.Solver.Tolerance = *flagTolerance
	}
	if *flagWorkers >= 0 {
		cfg.Solver.Workers = *flagWorkers
	}
	if *flagMargin >= 0 {
		cfg.Solver.Margin = *flagMargin
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagPlot != "" {
		cfg.Output.Plot = *flagPlot
	}
}
