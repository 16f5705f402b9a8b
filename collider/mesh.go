package collider

import (
	"math"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshParms defines a triangle mesh collider.
type MeshParms struct {
	Pose          Pose
	ContactOffset float64
	Faces         []Face
	// WeldTolerance is the distance under which vertices of different
	// faces are considered shared. If zero it is inferred from the
	// smallest edge in the mesh.
	WeldTolerance float64
}

// Mesh is a triangle mesh distance function. Inside and outside are told
// apart with angle weighted pseudo normals, so closed meshes push
// penetrating points out through the nearest surface.
type Mesh struct {
	base
	bb        d3.Box
	vertices  []pseudoVertex
	triangles []meshTriangle
	// edge pseudo normals keyed by vertex index, lower index first.
	edgeN map[[2]int]r3.Vec
	index primitiveIndex
}

type pseudoVertex struct {
	V r3.Vec
	// N is the weighted pseudo normal where the weights
	// are the opening angle formed by edges for the triangle.
	N r3.Vec
}

type meshTriangle struct {
	tri      d3.Triangle
	vertices [3]int
	n        r3.Vec
}

var _ Shape = (*Mesh)(nil)

// NewMesh builds a mesh collider. Degenerate faces are skipped.
func NewMesh(parms MeshParms) (*Mesh, error) {
	if len(parms.Faces) == 0 {
		return nil, shapeErr("mesh has no faces")
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	bb := d3.EmptyBox()
	minEdge2 := math.MaxFloat64
	maxEdge2 := 0.0
	faces := make([]Face, 0, len(parms.Faces))
	for _, f := range parms.Faces {
		if degenerate(f) {
			continue
		}
		faces = append(faces, f)
		for j, vert := range f {
			bb = bb.Include(vert)
			side2 := r3.Norm2(r3.Sub(f[(j+1)%3], vert))
			minEdge2 = math.Min(minEdge2, side2)
			maxEdge2 = math.Max(maxEdge2, side2)
		}
	}
	if len(faces) == 0 {
		return nil, shapeErr("all %d mesh faces are degenerate", len(parms.Faces))
	}
	tol := parms.WeldTolerance
	suggested := math.Sqrt(minEdge2) / 256
	switch {
	case tol < 0:
		return nil, shapeErr("negative weld tolerance %g", tol)
	case tol > math.Sqrt(maxEdge2)/2:
		return nil, shapeErr("weld tolerance %g too large for mesh, suggested tolerance: %g", tol, suggested)
	case tol == 0:
		tol = suggested
	}

	m := &Mesh{
		base:      b,
		bb:        bb,
		triangles: make([]meshTriangle, len(faces)),
		edgeN:     make(map[[2]int]r3.Vec),
	}
	// vertex index cache in tolerance-space.
	cache := make(map[[3]int64]int)
	ri := 1 / tol
	centroids := make([]r3.Vec, len(faces))
	reach := 0.0
	for i, f := range faces {
		tri := d3.NewTriangle(f)
		norm := tri.Normal()
		mt := meshTriangle{tri: tri, n: norm}
		for j, vert := range f {
			v := r3.Scale(ri, vert)
			key := [3]int64{int64(math.Round(v.X)), int64(math.Round(v.Y)), int64(math.Round(v.Z))}
			vertexIdx, ok := cache[key]
			if !ok {
				vertexIdx = len(m.vertices)
				cache[key] = vertexIdx
				m.vertices = append(m.vertices, pseudoVertex{V: vert})
			}
			s1, s2 := r3.Sub(f[(j+1)%3], vert), r3.Sub(f[(j+2)%3], vert)
			alpha := math.Acos(math.Max(-1, math.Min(1, r3.Cos(s1, s2))))
			m.vertices[vertexIdx].N = r3.Add(m.vertices[vertexIdx].N, r3.Scale(alpha, norm))
			mt.vertices[j] = vertexIdx
		}
		for j := range mt.vertices {
			edge := edgeKey(mt.vertices[j], mt.vertices[(j+1)%3])
			m.edgeN[edge] = r3.Add(m.edgeN[edge], norm)
		}
		m.triangles[i] = mt
		centroids[i] = r3.Scale(1./3., r3.Add(r3.Add(f[0], f[1]), f[2]))
		reach = math.Max(reach, reachOf(centroids[i], f[:]...))
	}
	m.index = newPrimitiveIndex(centroids, reach)
	return m, nil
}

// Evaluate projects p onto the nearest mesh triangle. The returned normal
// points outward: towards p when p is outside and away from p when inside.
func (m *Mesh) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := m.local(p)
	best := m.index.nearest(lp, func(i int) float64 {
		closest, _ := m.triangles[i].tri.Closest(lp)
		return r3.Norm2(r3.Sub(lp, closest))
	})
	t := &m.triangles[best]
	closest, feat := t.tri.Closest(lp)
	pseudo := m.pseudoNormal(t, feat)
	d := r3.Sub(lp, closest)
	if r3.Norm2(d) < d3.Epsilon {
		return m.surface(closest, pseudo)
	}
	if r3.Dot(pseudo, d) < 0 {
		d = r3.Scale(-1, d)
	}
	return m.surface(closest, d)
}

// Bounds returns the world space bounds of the mesh.
func (m *Mesh) Bounds() r3.Box {
	return m.bounds(m.bb)
}

// Len returns the number of non degenerate triangles in the mesh.
func (m *Mesh) Len() int { return len(m.triangles) }

// Vertices returns the number of welded vertices in the mesh.
func (m *Mesh) Vertices() int { return len(m.vertices) }

func (m *Mesh) pseudoNormal(t *meshTriangle, feat d3.Feature) r3.Vec {
	switch {
	case feat.IsVertex():
		return d3.SafeUnit(m.vertices[t.vertices[feat]].N)
	case feat.IsEdge():
		i, j := feat.EdgeVertices()
		return d3.SafeUnit(m.edgeN[edgeKey(t.vertices[i], t.vertices[j])])
	}
	return t.n
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
