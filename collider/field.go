package collider

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/chewxy/math32"
	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a scalar signed distance field: negative inside, positive outside.
type Field interface {
	Evaluate(p r3.Vec) float64
	Bounds() r3.Box
}

// FieldFunc adapts a function and its bounds to the Field interface.
type FieldFunc struct {
	F   func(p r3.Vec) float64
	Box r3.Box
}

// Evaluate calls f.F.
func (f FieldFunc) Evaluate(p r3.Vec) float64 { return f.F(p) }

// Bounds returns f.Box.
func (f FieldFunc) Bounds() r3.Box { return f.Box }

// SDFParms defines a collider backed by a distance field.
type SDFParms struct {
	Pose          Pose
	ContactOffset float64
	Field         Field
	// GradientStep is the central difference step used to
	// estimate the field normal. Zero picks a step relative to the field bounds.
	GradientStep float64
}

// SDF projects points onto the zero level set of a distance field by
// stepping along the field gradient. The projection is exact for
// true distance fields and approximate otherwise.
type SDF struct {
	base
	field Field
	h     float64
}

var _ Shape = (*SDF)(nil)

// NewSDF returns a distance field collider.
func NewSDF(parms SDFParms) (*SDF, error) {
	if parms.Field == nil {
		return nil, shapeErr("nil field")
	}
	bb := d3.Box(parms.Field.Bounds())
	if !d3.IsFinite(bb.Min) || !d3.IsFinite(bb.Max) || d3.LTEZero(bb.Size()) {
		return nil, shapeErr("field bounds %v are empty or not finite", bb)
	}
	h := parms.GradientStep
	switch {
	case h < 0 || math.IsNaN(h):
		return nil, shapeErr("negative gradient step %g", h)
	case h == 0:
		h = 1e-5 * d3.Max(bb.Size())
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	return &SDF{base: b, field: parms.Field, h: h}, nil
}

// Evaluate projects p onto the field's zero level set.
func (s *SDF) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := s.local(p)
	d := s.field.Evaluate(lp)
	n := d3.SafeUnit(gradient(s.field, lp, s.h))
	return s.surface(r3.Sub(lp, r3.Scale(d, n)), n)
}

// Bounds returns the world space bounds of the field.
func (s *SDF) Bounds() r3.Box {
	return s.bounds(d3.Box(s.field.Bounds()))
}

func gradient(f Field, p r3.Vec, h float64) r3.Vec {
	dx := r3.Vec{X: h}
	dy := r3.Vec{Y: h}
	dz := r3.Vec{Z: h}
	return r3.Vec{
		X: f.Evaluate(r3.Add(p, dx)) - f.Evaluate(r3.Sub(p, dx)),
		Y: f.Evaluate(r3.Add(p, dy)) - f.Evaluate(r3.Sub(p, dy)),
		Z: f.Evaluate(r3.Add(p, dz)) - f.Evaluate(r3.Sub(p, dz)),
	}
}

// Signed returns the signed distance field of a shape measured along the
// shape normal. It is exact for convex shapes. The field is evaluated in
// the shape's world space.
func Signed(shape Shape) Field {
	return FieldFunc{
		F: func(p r3.Vec) float64 {
			sp := shape.Evaluate(p, 0, d3.Identity)
			return r3.Dot(sp.Normal, r3.Sub(p, sp.Point))
		},
		Box: shape.Bounds(),
	}
}

// maxGridSamples bounds the memory a sampled grid may take.
const maxGridSamples = 1 << 26

// Grid is a distance field sampled on a regular lattice and stored in
// single precision. Values between samples are trilinearly interpolated.
// Outside its bounds the grid extends the nearest boundary value by the
// distance to the bounds.
type Grid struct {
	bb      d3.Box
	cell    r3.Vec
	n       [3]int // samples per axis
	samples []float32
}

var _ Field = (*Grid)(nil)

// SampleGrid samples f over its bounds with a lattice spacing no larger
// than resolution. Sampling runs on workers goroutines, one z slab at a
// time. workers < 1 uses GOMAXPROCS.
func SampleGrid(f Field, resolution float64, workers int) (*Grid, error) {
	if f == nil {
		return nil, shapeErr("nil field")
	}
	if err := validPositive("grid resolution", resolution); err != nil {
		return nil, err
	}
	bb := d3.Box(f.Bounds())
	size := bb.Size()
	if !d3.IsFinite(size) || d3.LTEZero(size) {
		return nil, shapeErr("field bounds %v are empty or not finite", bb)
	}
	var n [3]int
	total := 1
	for i := range n {
		n[i] = int(math.Ceil(d3.Comp(size, i)/resolution)) + 1
		total *= n[i]
		if total > maxGridSamples {
			return nil, shapeErr("grid resolution %g over %v needs more than %d samples", resolution, size, maxGridSamples)
		}
	}
	g := &Grid{
		bb: bb,
		cell: r3.Vec{
			X: size.X / float64(n[0]-1),
			Y: size.Y / float64(n[1]-1),
			Z: size.Z / float64(n[2]-1),
		},
		n:       n,
		samples: make([]float32, total),
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	slabs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for k := range slabs {
				g.sampleSlab(f, k)
			}
		}()
	}
	for k := 0; k < n[2]; k++ {
		slabs <- k
	}
	close(slabs)
	wg.Wait()

	for i, v := range g.samples {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			x, y, z := i%n[0], (i/n[0])%n[1], i/(n[0]*n[1])
			return nil, fmt.Errorf("%w: field sample %v at lattice (%d,%d,%d) not finite in single precision",
				ErrInvalidShape, v, x, y, z)
		}
	}
	return g, nil
}

func (g *Grid) sampleSlab(f Field, k int) {
	off := k * g.n[0] * g.n[1]
	for j := 0; j < g.n[1]; j++ {
		for i := 0; i < g.n[0]; i++ {
			g.samples[off+j*g.n[0]+i] = float32(f.Evaluate(g.lattice(i, j, k)))
		}
	}
}

func (g *Grid) lattice(i, j, k int) r3.Vec {
	return r3.Add(g.bb.Min, d3.MulElem(g.cell, r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}))
}

func (g *Grid) at(i, j, k int) float32 {
	return g.samples[(k*g.n[1]+j)*g.n[0]+i]
}

// Dims returns the number of samples along each axis.
func (g *Grid) Dims() [3]int { return g.n }

// Bounds returns the sampled region.
func (g *Grid) Bounds() r3.Box { return r3.Box(g.bb) }

// Evaluate returns the interpolated field value at p.
func (g *Grid) Evaluate(p r3.Vec) float64 {
	q := d3.Clamp(p, g.bb.Min, g.bb.Max)
	outside := r3.Norm(r3.Sub(p, q))
	rel := r3.Sub(q, g.bb.Min)
	var idx [3]int
	var t [3]float32
	for a := 0; a < 3; a++ {
		f := d3.Comp(rel, a) / d3.Comp(g.cell, a)
		i := int(math.Floor(f))
		if i > g.n[a]-2 {
			i = g.n[a] - 2
		}
		if i < 0 {
			i = 0
		}
		idx[a] = i
		t[a] = float32(f - float64(i))
	}
	i, j, k := idx[0], idx[1], idx[2]
	lerp := func(a, b, t float32) float32 { return a + t*(b-a) }
	c00 := lerp(g.at(i, j, k), g.at(i+1, j, k), t[0])
	c10 := lerp(g.at(i, j+1, k), g.at(i+1, j+1, k), t[0])
	c01 := lerp(g.at(i, j, k+1), g.at(i+1, j, k+1), t[0])
	c11 := lerp(g.at(i, j+1, k+1), g.at(i+1, j+1, k+1), t[0])
	c0 := lerp(c00, c10, t[1])
	c1 := lerp(c01, c11, t[1])
	return float64(lerp(c0, c1, t[2])) + outside
}
