// Package narrowphase turns broad phase pairs into contacts by running the
// closest point optimization of every pair on a pool of workers.
package narrowphase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/soypat/contact"
	"github.com/soypat/contact/broadphase"
	"github.com/soypat/contact/collider"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidPair is returned when a pair references a simplex, particle
// or collider that does not exist.
var ErrInvalidPair = errors.New("invalid pair")

// Contact is the closest point between a simplex and a collider.
type Contact struct {
	Simplex  int
	Collider int
	// Weights are the barycentric weights of the simplex point.
	Weights contact.Barycentric
	// Point and Radius are the interpolated simplex point and thickness.
	Point  r3.Vec
	Radius float64
	// Surface and Normal are the collider surface point and its outward normal.
	Surface r3.Vec
	Normal  r3.Vec
	// Distance is the separation along Normal, negative when penetrating.
	Distance    float64
	Iterations  int
	Evaluations int
}

// Solver generates contacts. The zero value is usable: it runs the
// default optimizer on GOMAXPROCS workers and does not log.
type Solver struct {
	// Optimizer configures each closest point query. A zero MaxIterations
	// and Tolerance select contact.DefaultOptimizer.
	Optimizer contact.Optimizer
	// Workers is the number of goroutines optimizing pairs. Values below 1 use GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
	// Trace, if not nil, receives the optimizer steps of every pair. It is
	// called from worker goroutines and must be safe for concurrent use.
	Trace func(pair broadphase.Pair, step contact.Step)
}

// Solve returns one contact per pair sorted by simplex then collider.
// Pairs are validated before any work starts. If ctx is cancelled before
// all pairs are solved Solve returns ctx.Err() and no contacts.
func (s *Solver) Solve(ctx context.Context, ps *contact.Particles, simplices [][]int, shapes []collider.Shape, pairs []broadphase.Pair) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(ps, simplices, shapes, pairs); err != nil {
		return nil, err
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opt := s.Optimizer
	if opt.MaxIterations == 0 && opt.Tolerance == 0 {
		trace := opt.Trace
		opt = contact.DefaultOptimizer()
		opt.Trace = trace
	}
	workers := s.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, max(1, len(pairs)))
	start := time.Now()

	type result struct {
		idx int
		c   Contact
	}
	tasks := make(chan int, workers)
	results := make(chan result, len(pairs))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				if ctx.Err() != nil {
					continue // drain.
				}
				results <- result{idx: i, c: s.solvePair(ps, simplices, shapes, pairs[i], opt)}
			}
		}()
	}
	go func() {
		defer close(tasks)
		for i := range pairs {
			select {
			case <-ctx.Done():
				return
			case tasks <- i:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	contacts := make([]Contact, len(pairs))
	var done, capped int
	for r := range results {
		contacts[r.idx] = r.c
		done++
		if r.c.Iterations >= opt.MaxIterations && len(simplices[r.c.Simplex]) > 1 {
			capped++
		}
	}
	if done != len(pairs) {
		err := ctx.Err()
		if err == nil {
			err = errors.New("narrow phase stopped before solving all pairs")
		}
		log.Warn("narrow phase cancelled", zap.Int("solved", done), zap.Int("pairs", len(pairs)), zap.Error(err))
		return nil, err
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].Simplex != contacts[j].Simplex {
			return contacts[i].Simplex < contacts[j].Simplex
		}
		return contacts[i].Collider < contacts[j].Collider
	})
	log.Debug("narrow phase done",
		zap.Int("pairs", len(pairs)),
		zap.Int("workers", workers),
		zap.Int("iteration_capped", capped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return contacts, nil
}

func (s *Solver) solvePair(ps *contact.Particles, simplices [][]int, shapes []collider.Shape, pair broadphase.Pair, opt contact.Optimizer) Contact {
	if s.Trace != nil {
		opt.Trace = func(st contact.Step) { s.Trace(pair, st) }
	}
	simplex := simplices[pair.Simplex]
	res := optimize(shapes[pair.Collider], ps, simplex, opt)
	return Contact{
		Simplex:     pair.Simplex,
		Collider:    pair.Collider,
		Weights:     res.Weights,
		Point:       res.Point,
		Radius:      res.Radius,
		Surface:     res.Surface.Point,
		Normal:      res.Surface.Normal,
		Distance:    res.Distance(),
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
	}
}

// optimize instantiates the optimizer for each concrete shape kind.
func optimize(shape collider.Shape, ps *contact.Particles, simplex []int, opt contact.Optimizer) contact.Result {
	guess := contact.Uniform(len(simplex))
	switch sh := shape.(type) {
	case *collider.Sphere:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.Capsule:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.Box:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.Triangle:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.Mesh:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.EdgeMesh:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.SDF:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	case *collider.Heightfield:
		return contact.Optimize(sh, ps, simplex, guess, opt)
	}
	return contact.Optimize[contact.DistanceFunction](shape, ps, simplex, guess, opt)
}

func validate(ps *contact.Particles, simplices [][]int, shapes []collider.Shape, pairs []broadphase.Pair) error {
	n := ps.Len()
	if ps.Radii != nil && len(ps.Radii) != n {
		return fmt.Errorf("%w: %d radii for %d particles", ErrInvalidPair, len(ps.Radii), n)
	}
	if ps.Orientations != nil && len(ps.Orientations) != n {
		return fmt.Errorf("%w: %d orientations for %d particles", ErrInvalidPair, len(ps.Orientations), n)
	}
	for i, p := range pairs {
		switch {
		case p.Simplex < 0 || p.Simplex >= len(simplices):
			return fmt.Errorf("%w: pair %d references simplex %d of %d", ErrInvalidPair, i, p.Simplex, len(simplices))
		case p.Collider < 0 || p.Collider >= len(shapes) || shapes[p.Collider] == nil:
			return fmt.Errorf("%w: pair %d references collider %d of %d", ErrInvalidPair, i, p.Collider, len(shapes))
		}
		simplex := simplices[p.Simplex]
		if len(simplex) < 1 || len(simplex) > contact.MaxSimplexSize {
			return fmt.Errorf("%w: simplex %d has %d particles", ErrInvalidPair, p.Simplex, len(simplex))
		}
		for _, idx := range simplex {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: simplex %d references particle %d of %d", ErrInvalidPair, p.Simplex, idx, n)
			}
		}
	}
	return nil
}
