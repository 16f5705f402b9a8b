package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the identity rotation. The zero value of r3.Rotation
// also rotates as the identity.
var Identity = r3.Rotation{Real: 1}

// QuatFrom returns the rotation with scalar part w and vector part (x, y, z).
func QuatFrom(w, x, y, z float64) r3.Rotation {
	return r3.Rotation{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// QuatDot returns the 4D dot product of two quaternions.
func QuatDot(a, b r3.Rotation) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// QuatScale returns q with every component multiplied by f.
func QuatScale(f float64, q r3.Rotation) r3.Rotation {
	return r3.Rotation{Real: f * q.Real, Imag: f * q.Imag, Jmag: f * q.Jmag, Kmag: f * q.Kmag}
}

// QuatAdd returns the component-wise sum of two quaternions.
func QuatAdd(a, b r3.Rotation) r3.Rotation {
	return r3.Rotation{Real: a.Real + b.Real, Imag: a.Imag + b.Imag, Jmag: a.Jmag + b.Jmag, Kmag: a.Kmag + b.Kmag}
}

// Normalize returns q scaled to unit length. A (near) zero quaternion
// normalizes to the identity.
func Normalize(q r3.Rotation) r3.Rotation {
	n := math.Sqrt(QuatDot(q, q))
	if n < Epsilon {
		return Identity
	}
	return QuatScale(1/n, q)
}
