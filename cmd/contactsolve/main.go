// Command contactsolve loads a scene file, pairs its simplices with its
// colliders and prints the closest point contacts.
//
// Usage:
//
//	contactsolve [flags] scene.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/soypat/contact/broadphase"
	"github.com/soypat/contact/internal/config"
	"github.com/soypat/contact/internal/logger"
	"github.com/soypat/contact/narrowphase"
	"github.com/soypat/contact/scene"
	"go.uber.org/zap"
)

func main() {
	config.ParseFlags()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "contactsolve: %v\n", err)
		os.Exit(2)
	}
	if config.PrintConfig() {
		if err := cfg.Write(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "contactsolve: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "contactsolve: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	args := config.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: contactsolve [flags] scene.yaml")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, args[0], os.Stdout); err != nil {
		stop()
		logger.Fatal("contactsolve failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, scenePath string, stdout io.Writer) error {
	start := time.Now()
	sc, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	ps, simplices, shapes, err := sc.Build()
	if err != nil {
		return err
	}
	logger.Info("scene loaded",
		zap.String("path", scenePath),
		zap.Int("particles", ps.Len()),
		zap.Int("simplices", len(simplices)),
		zap.Int("colliders", len(shapes)),
	)

	bounders := make([]broadphase.Bounder, len(shapes))
	for i, s := range shapes {
		bounders[i] = s
	}
	pairs := broadphase.Find(ps, simplices, bounders, cfg.Solver.Margin)
	logger.Debug("broad phase done", zap.Int("pairs", len(pairs)), zap.Float64("margin", cfg.Solver.Margin))

	solver := narrowphase.Solver{
		Optimizer: cfg.Optimizer(),
		Workers:   cfg.Solver.Workers,
		Logger:    logger.Log.Named("narrowphase"),
	}
	var tr *tracer
	if cfg.Output.Plot != "" {
		tr = newTracer()
		solver.Trace = tr.record
	}
	contacts, err := solver.Solve(ctx, ps, simplices, shapes, pairs)
	if err != nil {
		return err
	}

	names := make([]string, len(sc.Colliders))
	for i, c := range sc.Colliders {
		names[i] = c.Name
	}
	switch cfg.Output.Format {
	case config.FormatYAML:
		err = writeYAML(stdout, contacts, simplices, names)
	default:
		err = writeText(stdout, contacts, names)
	}
	if err != nil {
		return fmt.Errorf("writing contacts: %w", err)
	}

	if tr != nil {
		p, err := tr.plot(cfg.Solver.Tolerance)
		if errors.Is(err, errNoSteps) {
			logger.Info("no refinement steps to plot")
		} else if err != nil {
			return err
		} else if err := savePlot(p, cfg.Output.Plot); err != nil {
			return fmt.Errorf("saving plot: %w", err)
		}
	}

	var penetrating int
	for _, c := range contacts {
		if c.Distance < 0 {
			penetrating++
		}
	}
	logger.Info("contacts solved",
		zap.Int("contacts", len(contacts)),
		zap.Int("penetrating", penetrating),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
