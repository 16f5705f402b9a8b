package collider

import (
	"math"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// EdgeMeshParms defines a collider made of line segments such as a rope
// or the edges of a cloth. Edges index into Vertices.
type EdgeMeshParms struct {
	Pose          Pose
	ContactOffset float64
	Vertices      []r3.Vec
	Edges         [][2]int
}

// EdgeMesh is the distance function of a set of segments. It has no
// inside, normals always point from the nearest segment towards the query.
type EdgeMesh struct {
	base
	bb       d3.Box
	vertices []r3.Vec
	edges    [][2]int
	index    primitiveIndex
}

var _ Shape = (*EdgeMesh)(nil)

// NewEdgeMesh builds an edge mesh collider. Zero length edges are kept,
// they behave as points.
func NewEdgeMesh(parms EdgeMeshParms) (*EdgeMesh, error) {
	if len(parms.Edges) == 0 {
		return nil, shapeErr("edge mesh has no edges")
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	bb := d3.EmptyBox()
	for i, v := range parms.Vertices {
		if !d3.IsFinite(v) {
			return nil, shapeErr("edge mesh vertex %d is not finite: %v", i, v)
		}
	}
	mid := make([]r3.Vec, len(parms.Edges))
	reach := 0.0
	for i, e := range parms.Edges {
		for _, vi := range e {
			if vi < 0 || vi >= len(parms.Vertices) {
				return nil, shapeErr("edge %d references vertex %d out of %d", i, vi, len(parms.Vertices))
			}
		}
		a, c := parms.Vertices[e[0]], parms.Vertices[e[1]]
		bb = bb.Include(a).Include(c)
		mid[i] = r3.Scale(0.5, r3.Add(a, c))
		reach = math.Max(reach, reachOf(mid[i], a, c))
	}
	em := &EdgeMesh{
		base:     b,
		bb:       bb,
		vertices: append([]r3.Vec(nil), parms.Vertices...),
		edges:    append([][2]int(nil), parms.Edges...),
	}
	em.index = newPrimitiveIndex(mid, reach)
	return em, nil
}

// Evaluate projects p onto the nearest segment.
func (em *EdgeMesh) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := em.local(p)
	best := em.index.nearest(lp, func(i int) float64 {
		return r3.Norm2(r3.Sub(lp, em.closest(i, lp)))
	})
	closest := em.closest(best, lp)
	return em.surface(closest, r3.Sub(lp, closest))
}

// Bounds returns the world space bounds of all edges.
func (em *EdgeMesh) Bounds() r3.Box {
	return em.bounds(em.bb)
}

// Len returns the number of edges.
func (em *EdgeMesh) Len() int { return len(em.edges) }

func (em *EdgeMesh) closest(edge int, p r3.Vec) r3.Vec {
	e := em.edges[edge]
	c, _ := d3.ClosestOnSegment(p, em.vertices[e[0]], em.vertices[e[1]])
	return c
}
