package collider

import (
	"math"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// SphereParms defines a sphere collider.
type SphereParms struct {
	Pose          Pose
	ContactOffset float64
	Center        r3.Vec // in local space
	Radius        float64
}

// Sphere is a sphere distance function.
type Sphere struct {
	base
	center r3.Vec
	radius float64
}

var _ Shape = (*Sphere)(nil)

// NewSphere returns a sphere collider.
func NewSphere(parms SphereParms) (*Sphere, error) {
	if err := validPositive("sphere radius", parms.Radius); err != nil {
		return nil, err
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	return &Sphere{base: b, center: parms.Center, radius: parms.Radius}, nil
}

// Evaluate projects p onto the sphere surface.
func (s *Sphere) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := s.local(p)
	n := d3.SafeUnit(r3.Sub(lp, s.center))
	return s.surface(r3.Add(s.center, r3.Scale(s.radius, n)), n)
}

// Bounds returns the world space bounds of the sphere.
func (s *Sphere) Bounds() r3.Box {
	return s.bounds(d3.NewBox(s.center, d3.Elem(2*s.radius)))
}

// CapsuleParms defines a capsule collider: a segment along one local axis
// swept by a sphere.
type CapsuleParms struct {
	Pose          Pose
	ContactOffset float64
	Center        r3.Vec
	Radius        float64
	// Height is the total height along Axis, caps included. Heights
	// below 2*Radius produce a sphere.
	Height float64
	// Axis is the local axis of the capsule, 0 for X, 1 for Y and 2 for Z.
	Axis int
}

// Capsule is a capsule distance function.
type Capsule struct {
	base
	a, b   r3.Vec // segment end points
	radius float64
}

var _ Shape = (*Capsule)(nil)

// NewCapsule returns a capsule collider.
func NewCapsule(parms CapsuleParms) (*Capsule, error) {
	if err := validPositive("capsule radius", parms.Radius); err != nil {
		return nil, err
	}
	if parms.Height < 0 {
		return nil, shapeErr("capsule height must be non negative, got %g", parms.Height)
	}
	if parms.Axis < 0 || parms.Axis > 2 {
		return nil, shapeErr("capsule axis must be 0, 1 or 2, got %d", parms.Axis)
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	half := math.Max(0, parms.Height/2-parms.Radius)
	axis := d3.SetComp(r3.Vec{}, parms.Axis, half)
	return &Capsule{
		base:   b,
		a:      r3.Sub(parms.Center, axis),
		b:      r3.Add(parms.Center, axis),
		radius: parms.Radius,
	}, nil
}

// Evaluate projects p onto the capsule surface.
func (c *Capsule) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := c.local(p)
	onAxis, _ := d3.ClosestOnSegment(lp, c.a, c.b)
	n := d3.SafeUnit(r3.Sub(lp, onAxis))
	return c.surface(r3.Add(onAxis, r3.Scale(c.radius, n)), n)
}

// Bounds returns the world space bounds of the capsule.
func (c *Capsule) Bounds() r3.Box {
	r := d3.Elem(c.radius)
	bb := d3.Box{Min: r3.Sub(d3.MinElem(c.a, c.b), r), Max: r3.Add(d3.MaxElem(c.a, c.b), r)}
	return c.bounds(bb)
}

// BoxParms defines an oriented box collider.
type BoxParms struct {
	Pose          Pose
	ContactOffset float64
	Center        r3.Vec
	Size          r3.Vec // full extents along each local axis
}

// Box is an oriented box distance function.
type Box struct {
	base
	center r3.Vec
	half   r3.Vec
}

var _ Shape = (*Box)(nil)

// NewBox returns a box collider.
func NewBox(parms BoxParms) (*Box, error) {
	if d3.LTEZero(parms.Size) || !d3.IsFinite(parms.Size) {
		return nil, shapeErr("box size must be positive, got %v", parms.Size)
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	return &Box{base: b, center: parms.Center, half: r3.Scale(0.5, parms.Size)}, nil
}

// Evaluate projects p onto the box surface. Points inside the box are
// pushed out through the nearest face.
func (b *Box) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	rel := r3.Sub(b.local(p), b.center)
	abs := d3.AbsElem(rel)
	if abs.X > b.half.X || abs.Y > b.half.Y || abs.Z > b.half.Z {
		closest := d3.Clamp(rel, r3.Scale(-1, b.half), b.half)
		n := d3.SafeUnit(r3.Sub(rel, closest))
		return b.surface(r3.Add(b.center, closest), n)
	}
	// inside: find the face with least penetration.
	axis := 0
	depth := b.half.X - abs.X
	for i := 1; i < 3; i++ {
		if d := d3.Comp(b.half, i) - d3.Comp(abs, i); d < depth {
			axis, depth = i, d
		}
	}
	sign := 1.0
	if d3.Comp(rel, axis) < 0 {
		sign = -1
	}
	closest := d3.SetComp(rel, axis, sign*d3.Comp(b.half, axis))
	n := d3.SetComp(r3.Vec{}, axis, sign)
	return b.surface(r3.Add(b.center, closest), n)
}

// Bounds returns the world space bounds of the box.
func (b *Box) Bounds() r3.Box {
	return b.bounds(d3.Box{Min: r3.Sub(b.center, b.half), Max: r3.Add(b.center, b.half)})
}

// TriangleParms defines a single triangle collider.
type TriangleParms struct {
	Pose          Pose
	ContactOffset float64
	Face          Face
}

// Triangle is a two sided triangle distance function. The triangle
// edge products are cached for repeated evaluation against the same face.
type Triangle struct {
	base
	tri    d3.Triangle
	normal r3.Vec
}

var _ Shape = (*Triangle)(nil)

// NewTriangle returns a triangle collider.
func NewTriangle(parms TriangleParms) (*Triangle, error) {
	if degenerate(parms.Face) {
		return nil, shapeErr("degenerate triangle %v", parms.Face)
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	tri := d3.NewTriangle(parms.Face)
	return &Triangle{base: b, tri: tri, normal: tri.Normal()}, nil
}

// Evaluate projects p onto the triangle. The normal points from the
// triangle towards p; points lying on the triangle get the face normal.
func (t *Triangle) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := t.local(p)
	closest, _ := t.tri.Closest(lp)
	d := r3.Sub(lp, closest)
	if r3.Norm2(d) < d3.Epsilon {
		return t.surface(closest, t.normal)
	}
	return t.surface(closest, d)
}

// Bounds returns the world space bounds of the triangle.
func (t *Triangle) Bounds() r3.Box {
	v := d3.Set(t.tri.V[:])
	return t.bounds(d3.Box{Min: v.Min(), Max: v.Max()})
}

func degenerate(f Face) bool {
	if !d3.IsFinite(f[0]) || !d3.IsFinite(f[1]) || !d3.IsFinite(f[2]) {
		return true
	}
	area2 := r3.Norm2(r3.Cross(r3.Sub(f[1], f[0]), r3.Sub(f[2], f[0])))
	return area2 < d3.Epsilon*d3.Epsilon
}
