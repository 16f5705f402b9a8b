package d3

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a similarity transform: a unit rotation, then a uniform
// scale, then a translation. It moves points and normals between collider
// local space and world space.
// The zero value of Transform is the identity transform.
type Transform struct {
	rot r3.Rotation // unit length, zero value means identity.
	inv r3.Rotation // conjugate of rot.
	// dscale is the scale minus one so the zero value scales by 1.
	dscale float64
	pos    r3.Vec
}

// ComposeTransform creates a transform that rotates by q, scales by scale
// and then translates to position. q is normalized and the zero value of
// r3.Rotation is treated as the identity rotation. scale must be positive.
func ComposeTransform(position r3.Vec, scale float64, q r3.Rotation) Transform {
	q = Normalize(q)
	if q == Identity {
		q = r3.Rotation{}
	}
	return Transform{
		rot:    q,
		inv:    conj(q),
		dscale: scale - 1,
		pos:    position,
	}
}

// Transform moves a local point to world space.
func (t Transform) Transform(v r3.Vec) r3.Vec {
	return r3.Add(t.pos, r3.Scale(t.dscale+1, rotate(t.rot, v)))
}

// Inverse moves a world point to local space.
func (t Transform) Inverse(v r3.Vec) r3.Vec {
	return rotate(t.inv, r3.Scale(1/(t.dscale+1), r3.Sub(v, t.pos)))
}

// Normal rotates a local direction to world space. Directions are not
// affected by translation or uniform scaling.
func (t Transform) Normal(n r3.Vec) r3.Vec {
	return rotate(t.rot, n)
}

func rotate(q r3.Rotation, v r3.Vec) r3.Vec {
	if q == (r3.Rotation{}) {
		return v
	}
	return q.Rotate(v)
}

// conj returns the conjugate of q. For unit quaternions this is the inverse rotation.
func conj(q r3.Rotation) r3.Rotation {
	return r3.Rotation{Real: q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}
