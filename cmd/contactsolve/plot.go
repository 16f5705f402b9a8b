package main

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/soypat/contact"
	"github.com/soypat/contact/broadphase"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// maxPlotLines caps the number of pairs drawn in the convergence plot.
const maxPlotLines = 32

var errNoSteps = errors.New("no optimizer steps recorded")

// tracer collects optimizer steps from narrow phase workers.
type tracer struct {
	mu    sync.Mutex
	steps map[broadphase.Pair][]contact.Step
}

func newTracer() *tracer {
	return &tracer{steps: make(map[broadphase.Pair][]contact.Step)}
}

func (tr *tracer) record(p broadphase.Pair, st contact.Step) {
	tr.mu.Lock()
	tr.steps[p] = append(tr.steps[p], st)
	tr.mu.Unlock()
}

// residual is the duality gap of a Frank-Wolfe step or the bracket
// width of a golden-section step.
func residual(st contact.Step) float64 {
	if st.Upper > st.Lower {
		return st.Upper - st.Lower
	}
	return st.Gap
}

// plot draws the residual of every traced pair against the iteration
// number, with the convergence tolerance as a dashed line.
func (tr *tracer) plot(tol float64) (*plot.Plot, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.steps) == 0 {
		return nil, errNoSteps
	}
	pairs := make([]broadphase.Pair, 0, len(tr.steps))
	for p := range tr.steps {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Simplex != pairs[j].Simplex {
			return pairs[i].Simplex < pairs[j].Simplex
		}
		return pairs[i].Collider < pairs[j].Collider
	})
	if len(pairs) > maxPlotLines {
		pairs = pairs[:maxPlotLines]
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Closest point convergence (%d of %d pairs)", len(pairs), len(tr.steps))
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Residual"
	p.Add(plotter.NewGrid())

	for i, pair := range pairs {
		steps := tr.steps[pair]
		xys := make(plotter.XYs, len(steps))
		for j, st := range steps {
			xys[j].X = float64(st.Iteration)
			xys[j].Y = residual(st)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("pair %d/%d: %w", pair.Simplex, pair.Collider, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
	}

	if tol > 0 {
		tolLine := plotter.NewFunction(func(float64) float64 { return tol })
		tolLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		tolLine.Width = vg.Points(1.5)
		p.Add(tolLine)
		p.Legend.Add("tolerance", tolLine)
		p.Legend.Top = true
	}
	return p, nil
}

func savePlot(p *plot.Plot, path string) error {
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
