// Package contact finds the point of a particle simplex closest to an
// implicit surface. Given a simplex of one to four particles and a
// DistanceFunction it optimizes the barycentric combination of the
// simplex whose thickened image lies nearest to the surface.
//
// The result is what a collision pipeline needs to build a contact:
// the surface point and normal, the interpolated point on the simplex
// and the barycentric weights used to distribute the response.
package contact

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxSimplexSize is the largest number of particles in a simplex.
const MaxSimplexSize = 4

// SurfacePoint is a point on an implicit surface and the outward unit
// normal of the surface at that point.
type SurfacePoint struct {
	Point  r3.Vec
	Normal r3.Vec
}

// DistanceFunction is the interface to an implicit surface that can be
// projected on. Evaluate returns the surface point nearest to p. radius is
// the thickness of the query point and orientation its rotation; shapes
// that do not care about either may ignore them.
//
// Evaluate must not have caller visible side effects: the optimizer
// calls it many times with different points during a single query.
type DistanceFunction interface {
	Evaluate(p r3.Vec, radius float64, orientation r3.Rotation) SurfacePoint
}

// Particles holds parallel per particle arrays. They are owned by
// the caller and never modified. A nil Orientations or Radii slice is
// equivalent to identity orientations and zero radii.
type Particles struct {
	Positions    []r3.Vec
	Orientations []r3.Rotation
	Radii        []float64
}

// Len returns the number of particles.
func (ps *Particles) Len() int { return len(ps.Positions) }

func (ps *Particles) radius(i int) float64 {
	if ps.Radii == nil {
		return 0
	}
	return ps.Radii[i]
}

func (ps *Particles) orientation(i int) r3.Rotation {
	if ps.Orientations == nil {
		return r3.Rotation{Real: 1}
	}
	return ps.Orientations[i]
}

// Barycentric holds the convex combination weights of a simplex, one per
// simplex slot. Slots beyond the simplex size are zero.
type Barycentric [MaxSimplexSize]float64

// Uniform returns weights 1/n for the first n slots.
func Uniform(n int) Barycentric {
	var b Barycentric
	for i := 0; i < n; i++ {
		b[i] = 1 / float64(n)
	}
	return b
}

// Sum returns the sum of all weights.
func (b Barycentric) Sum() float64 {
	return b[0] + b[1] + b[2] + b[3]
}

// Valid reports whether b is a convex combination of the first n slots
// within tolerance tol: non negative weights adding up to one and zero
// weights past n.
func (b Barycentric) Valid(n int, tol float64) bool {
	for i, w := range b {
		if w < -tol || (i >= n && w != 0) || math.IsNaN(w) {
			return false
		}
	}
	return math.Abs(b.Sum()-1) <= tol
}
