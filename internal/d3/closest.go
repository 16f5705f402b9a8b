package d3

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Feature identifies which part of a triangle a closest point lies on.
type Feature uint8

const (
	FeatureV0 Feature = iota
	FeatureV1
	FeatureV2
	FeatureE01 // edge between vertex 0 and 1
	FeatureE12
	FeatureE20
	FeatureFace
)

// IsVertex reports whether f is one of the three triangle vertices.
func (f Feature) IsVertex() bool { return f <= FeatureV2 }

// IsEdge reports whether f is one of the three triangle edges.
func (f Feature) IsEdge() bool { return f >= FeatureE01 && f <= FeatureE20 }

// EdgeVertices returns the triangle vertex indices of an edge feature.
func (f Feature) EdgeVertices() (int, int) {
	switch f {
	case FeatureE01:
		return 0, 1
	case FeatureE12:
		return 1, 2
	case FeatureE20:
		return 2, 0
	}
	panic("feature is not an edge")
}

// ClosestOnSegment returns the point on segment ab closest to p and
// its parameter t in [0,1] such that closest = a + t*(b-a).
func ClosestOnSegment(p, a, b r3.Vec) (r3.Vec, float64) {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 < Epsilon {
		return a, 0
	}
	t := clamp(r3.Dot(r3.Sub(p, a), ab)/l2, 0, 1)
	return r3.Add(a, r3.Scale(t, ab)), t
}

// Tolerance in parameter space when classifying the closest feature.
const featureTol = 1e-9

// Triangle is a solid triangle with the edge products needed for
// closest point queries precomputed. It is meant for repeated queries
// against the same face.
type Triangle struct {
	V             [3]r3.Vec
	edge0, edge1  r3.Vec
	a00, a01, a11 float64
}

// NewTriangle caches the edge products of tri.
func NewTriangle(tri [3]r3.Vec) Triangle {
	e0 := r3.Sub(tri[1], tri[0])
	e1 := r3.Sub(tri[2], tri[0])
	return Triangle{
		V:     tri,
		edge0: e0,
		edge1: e1,
		a00:   r3.Dot(e0, e0),
		a01:   r3.Dot(e0, e1),
		a11:   r3.Dot(e1, e1),
	}
}

// Normal returns the unit normal of the triangle following the right hand rule.
func (t *Triangle) Normal() r3.Vec {
	return SafeUnit(r3.Cross(t.edge0, t.edge1))
}

// Closest returns the point on the solid triangle closest to p
// and the triangle feature it lies on.
//
// Based on Geometric Tool's algorithm for distance between a point
// and a solid triangle, licensed under the Boost Software License.
func (t *Triangle) Closest(p r3.Vec) (r3.Vec, Feature) {
	a := t.V[0]
	diff := r3.Sub(p, a)
	edge0, edge1 := t.edge0, t.edge1
	a00, a01, a11 := t.a00, t.a01, t.a11
	b0 := -r3.Dot(diff, edge0)
	b1 := -r3.Dot(diff, edge1)

	f00 := b0
	f10 := b0 + a00
	f01 := b0 + a01

	var p0, p1, st [2]float64
	var dt1, h0, h1 float64
	switch {
	case f00 >= 0:
		if f01 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		p0[0] = 0
		p0[1] = f00 / (f00 - f01)
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	case f01 <= 0:
		if f10 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
			break
		}
		p0[0] = f00 / (f00 - f10)
		p0[1] = 0
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	case f10 <= 0:
		p0[0] = 0
		p0[1] = f00 / (f00 - f01)
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	default:
		p0[0] = f00 / (f00 - f10)
		p0[1] = 0
		p1[0] = 0
		p1[1] = f00 / (f00 - f01)
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge02(a11, b1)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	}

	closest := r3.Add(a, r3.Add(r3.Scale(st[0], edge0), r3.Scale(st[1], edge1)))
	return closest, classify(st[0], st[1])
}

func classify(s, t float64) Feature {
	switch {
	case s <= featureTol && t <= featureTol:
		return FeatureV0
	case s >= 1-featureTol:
		return FeatureV1
	case t >= 1-featureTol:
		return FeatureV2
	case t <= featureTol:
		return FeatureE01
	case s <= featureTol:
		return FeatureE20
	case s+t >= 1-featureTol:
		return FeatureE12
	}
	return FeatureFace
}

func minEdge02(a11, b1 float64) (p [2]float64) {
	p[0] = 0
	if b1 >= 0 {
		p[1] = 0
	} else if a11+b1 <= 0 {
		p[1] = 1
	} else {
		p[1] = -b1 / a11
	}
	return p
}

func minEdge12(a01, a11, b1, f10, f01 float64) (p [2]float64) {
	h0 := a01 + b1 - f10
	if h0 >= 0 {
		p[1] = 0
	} else {
		h1 := a11 + b1 - f01
		if h1 <= 0 {
			p[1] = 1
		} else {
			p[1] = h0 / (h0 - h1)
		}
	}
	p[0] = 1 - p[1]
	return p
}

func minInterior(p0 [2]float64, h0 float64, p1 [2]float64, h1 float64) (p [2]float64) {
	z := h0 / (h0 - h1)
	omz := 1 - z
	p[0] = omz*p0[0] + z*p1[0]
	p[1] = omz*p0[1] + z*p1[1]
	return p
}
