// Package collider implements distance functions for the shapes a particle
// simplex can collide against: spheres, capsules, boxes, triangles, triangle
// meshes, edge meshes, signed distance fields and heightfields.
//
// Every shape is defined in its own local space and placed in the world with
// a Pose. Shapes are immutable once built and safe for concurrent use.
package collider

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidShape is returned by shape constructors when parameters
// do not describe a valid shape.
var ErrInvalidShape = errors.New("invalid shape")

func shapeErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidShape, fmt.Sprintf(format, args...))
}

// Shape is a distance function with world space bounds.
type Shape interface {
	contact.DistanceFunction
	// Bounds returns the world space box that contains the
	// shape surface including its contact offset.
	Bounds() r3.Box
}

// Pose places a shape in world space. The zero value is the identity pose.
type Pose struct {
	Position r3.Vec
	// Rotation is normalized on use. The zero value is the identity rotation.
	Rotation r3.Rotation
	// Scale is a uniform scale factor. Zero means 1.
	Scale float64
}

// Face is a triangle given by its three vertices. Outward facing
// triangles wind counter clockwise when seen from outside.
type Face [3]r3.Vec

// base holds the transform shared by all shapes.
type base struct {
	pose   d3.Transform
	offset float64
}

func newBase(pose Pose, contactOffset float64) (base, error) {
	scale := pose.Scale
	if scale == 0 {
		scale = 1
	}
	switch {
	case scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0):
		return base{}, shapeErr("scale must be positive and finite, got %g", pose.Scale)
	case contactOffset < 0 || math.IsNaN(contactOffset):
		return base{}, shapeErr("contact offset must be non negative, got %g", contactOffset)
	case !d3.IsFinite(pose.Position):
		return base{}, shapeErr("non finite position %v", pose.Position)
	}
	return base{
		pose:   d3.ComposeTransform(pose.Position, scale, pose.Rotation),
		offset: contactOffset,
	}, nil
}

// local transforms a world space point to shape space.
func (b *base) local(p r3.Vec) r3.Vec {
	return b.pose.Inverse(p)
}

// surface moves a local space closest point and normal to world space and
// applies the contact offset along the normal.
func (b *base) surface(closest, normal r3.Vec) contact.SurfacePoint {
	n := d3.SafeUnit(b.pose.Normal(normal))
	return contact.SurfacePoint{
		Point:  r3.Add(b.pose.Transform(closest), r3.Scale(b.offset, n)),
		Normal: n,
	}
}

// bounds returns the world space bounds of a local box.
func (b *base) bounds(local d3.Box) r3.Box {
	bb := b.pose.TransformBox(local)
	return r3.Box(bb.Enlarge(d3.Elem(2 * b.offset)))
}

func validPositive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return shapeErr("%s must be positive and finite, got %g", name, v)
	}
	return nil
}
