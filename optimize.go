package contact

import (
	"math"

	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxIterations is the iteration cap used by DefaultOptimizer.
	DefaultMaxIterations = 16
	// DefaultTolerance is the Frank-Wolfe duality gap tolerance used by DefaultOptimizer.
	// The golden-section search on edges uses ten times this value.
	DefaultTolerance = 0.004

	// golden ratio.
	phi = 1.6180339887498949
	// Frank-Wolfe step damping multiplying the 2/(i+2) schedule.
	stepDamping = 0.3
	// edgeToleranceScale multiplies the tolerance for 2-particle simplices.
	edgeToleranceScale = 10
)

// Optimizer holds the tuning parameters of a closest point query.
// The zero value performs a single evaluation at the initial guess.
type Optimizer struct {
	// MaxIterations bounds the number of refinement steps.
	// Values below 1 disable refinement.
	MaxIterations int
	// Tolerance is the convergence threshold. For simplices of
	// size 3 and 4 it is compared against the duality gap; for edges the
	// golden-section bracket uses Tolerance*10 as a relative width.
	Tolerance float64
	// Trace, if not nil, is called after every iteration.
	Trace func(Step)
}

// DefaultOptimizer returns the optimizer configuration used by collision detection.
func DefaultOptimizer() Optimizer {
	return Optimizer{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Step describes the state of an optimization after an iteration.
type Step struct {
	Iteration int
	// Weights are the barycentric weights the iteration evaluated (Frank-Wolfe)
	// or the current bracket midpoint (golden-section).
	Weights Barycentric
	// Gap is the duality gap measured at Weights. Frank-Wolfe only.
	Gap float64
	// Lower and Upper delimit the golden-section bracket on the weight of
	// the first particle after the iteration. Golden-section only.
	Lower, Upper float64
}

// Result is the outcome of Optimize.
type Result struct {
	// Surface is the surface point nearest to Point.
	Surface SurfacePoint
	// Point, Radius and Orientation are interpolated from the simplex particles using Weights.
	Point       r3.Vec
	Radius      float64
	Orientation r3.Rotation
	Weights     Barycentric
	// Iterations is the number of refinement iterations performed.
	Iterations int
	// Evaluations counts calls to the distance function.
	Evaluations int
}

// Distance returns the separation between the thickened simplex point and
// the surface measured along the surface normal. It is negative on penetration.
func (r Result) Distance() float64 {
	return r3.Dot(r.Surface.Normal, r3.Sub(r.Point, r.Surface.Point)) - r.Radius
}

// Optimize finds the barycentric combination of the simplex particles whose
// interpolated point lies closest to the surface described by f.
//
// simplex holds 1 to 4 indices into the particle arrays and guess the
// starting weights, usually Uniform(len(simplex)). Single particles are
// evaluated directly, edges are refined with a golden-section search and
// larger simplices with Frank-Wolfe iterations. Optimize never fails: when
// the iteration cap is reached the best estimate is returned.
//
// Optimize is generic over the distance function so each shape kind gets
// its own instantiation in hot loops. Simplex sizes outside [1, 4] are
// not supported.
func Optimize[F DistanceFunction](f F, ps *Particles, simplex []int, guess Barycentric, opt Optimizer) Result {
	switch {
	case len(simplex) == 1:
		return evaluateOnce(f, ps, simplex, Barycentric{1})
	case opt.MaxIterations < 1:
		return evaluateOnce(f, ps, simplex, guess)
	case len(simplex) == 2:
		return goldenSearch(f, ps, simplex, opt.MaxIterations, opt.Tolerance*edgeToleranceScale, opt.Trace)
	}
	return frankWolfe(f, ps, simplex, guess, opt.MaxIterations, opt.Tolerance, opt.Trace)
}

// DualityGap evaluates f at the point interpolated with weights w and
// returns the Frank-Wolfe duality gap there along with the index (within
// the simplex) of the particle that would be stepped towards.
func DualityGap[F DistanceFunction](f F, ps *Particles, simplex []int, w Barycentric) (gap float64, descent int) {
	p, r, q := interpolate(ps, simplex, w)
	sp := f.Evaluate(p, r, q)
	return dualityGap(ps, simplex, p, r, sp.Normal)
}

func evaluateOnce[F DistanceFunction](f F, ps *Particles, simplex []int, w Barycentric) Result {
	res := Result{Weights: w}
	res.Point, res.Radius, res.Orientation = interpolate(ps, simplex, w)
	res.Surface = f.Evaluate(res.Point, res.Radius, res.Orientation)
	res.Evaluations = 1
	return res
}

// goldenSearch optimizes the weight t of the first particle of an edge, the
// second particle weighing 1-t. Each probe is scored by how far the
// thickened probe point reaches past the surface along the surface normal; the
// bracket shrinks towards the better scored probe.
//
// The score is the signed clearance at the probe point, not the first
// particle's gap term. That term is monotone in t and would collapse the
// bracket onto an endpoint, while the clearance has a single minimum
// along the edge for convex shapes.
func goldenSearch[F DistanceFunction](f F, ps *Particles, simplex []int, maxIter int, tol float64, trace func(Step)) Result {
	var res Result
	probe := func(t float64) float64 {
		p, r, q := interpolate(ps, simplex, Barycentric{t, 1 - t})
		sp := f.Evaluate(p, r, q)
		return -(r3.Dot(sp.Normal, r3.Sub(p, sp.Point)) - r)
	}
	u, v := 0.0, 1.0
	for i := 0; i < maxIter; i++ {
		c := v - (v-u)/phi
		d := u + (v-u)/phi
		fc := probe(c)
		fd := probe(d)
		res.Evaluations += 2
		res.Iterations++
		if fc > fd {
			v = d
		} else {
			u = c
		}
		if trace != nil {
			mid := (u + v) / 2
			trace(Step{Iteration: i, Weights: Barycentric{mid, 1 - mid}, Lower: u, Upper: v})
		}
		// Relative tolerance: the bracket must shrink further near t=0.
		if v-u < tol*(math.Abs(c)+math.Abs(d)) {
			break
		}
	}
	t := (u + v) / 2
	final := evaluateOnce(f, ps, simplex, Barycentric{t, 1 - t})
	final.Iterations = res.Iterations
	final.Evaluations += res.Evaluations
	return final
}

func frankWolfe[F DistanceFunction](f F, ps *Particles, simplex []int, w Barycentric, maxIter int, tol float64, trace func(Step)) Result {
	res := Result{Weights: w}
	res.Point, res.Radius, res.Orientation = interpolate(ps, simplex, w)
	converged := false
	for i := 0; i < maxIter; i++ {
		res.Surface = f.Evaluate(res.Point, res.Radius, res.Orientation)
		res.Evaluations++
		res.Iterations++
		gap, descent := dualityGap(ps, simplex, res.Point, res.Radius, res.Surface.Normal)
		if trace != nil {
			trace(Step{Iteration: i, Weights: res.Weights, Gap: gap})
		}
		if gap < tol {
			converged = true
			break
		}
		step := stepDamping * 2 / float64(i+2)
		for j := range simplex {
			res.Weights[j] *= 1 - step
		}
		res.Weights[descent] += step
		res.Point, res.Radius, res.Orientation = interpolate(ps, simplex, res.Weights)
	}
	if !converged {
		// Weights moved after the last evaluation.
		res.Surface = f.Evaluate(res.Point, res.Radius, res.Orientation)
		res.Evaluations++
	}
	return res
}

// dualityGap returns the largest improvement achievable by moving towards a
// single simplex vertex. Candidate directions are corrected by the difference
// between the vertex radius and the interpolated radius.
func dualityGap(ps *Particles, simplex []int, point r3.Vec, radius float64, normal r3.Vec) (gap float64, descent int) {
	gap = -math.MaxFloat64
	for j, idx := range simplex {
		candidate := r3.Sub(ps.Positions[idx], point)
		candidate = r3.Sub(candidate, r3.Scale(ps.radius(idx)-radius, normal))
		corr := -r3.Dot(normal, candidate)
		if corr > gap {
			gap = corr
			descent = j
		}
	}
	return gap, descent
}

// interpolate returns the position, radius and orientation of the simplex at
// barycentric coordinates w. Orientations are blended in the hemisphere of
// the first particle's orientation and renormalized.
func interpolate(ps *Particles, simplex []int, w Barycentric) (p r3.Vec, radius float64, q r3.Rotation) {
	var qsum r3.Rotation
	ref := ps.orientation(simplex[0])
	for j, idx := range simplex {
		p = r3.Add(p, r3.Scale(w[j], ps.Positions[idx]))
		radius += w[j] * ps.radius(idx)
		qj := ps.orientation(idx)
		if d3.QuatDot(ref, qj) < 0 {
			qj = d3.QuatScale(-1, qj)
		}
		qsum = d3.QuatAdd(qsum, d3.QuatScale(w[j], qj))
	}
	return p, radius, d3.Normalize(qsum)
}
