package collider

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func TestSphere(t *testing.T) {
	for _, test := range []struct {
		parms  SphereParms
		p      r3.Vec
		point  r3.Vec
		normal r3.Vec
	}{
		{SphereParms{Radius: 1}, r3.Vec{Y: 3}, r3.Vec{Y: 1}, r3.Vec{Y: 1}},
		{SphereParms{Radius: 1}, r3.Vec{X: -0.5}, r3.Vec{X: -1}, r3.Vec{X: -1}},
		{SphereParms{Radius: 1, ContactOffset: 0.1}, r3.Vec{Z: 4}, r3.Vec{Z: 1.1}, r3.Vec{Z: 1}},
		{SphereParms{Radius: 1, Pose: Pose{Position: r3.Vec{X: 1}, Scale: 2}}, r3.Vec{X: 1, Y: 5}, r3.Vec{X: 1, Y: 2}, r3.Vec{Y: 1}},
		{SphereParms{Radius: 1, Center: r3.Vec{Y: -1}, Pose: Pose{Position: r3.Vec{Y: 1}}}, r3.Vec{X: 3}, r3.Vec{X: 1}, r3.Vec{X: 1}},
	} {
		s, err := NewSphere(test.parms)
		if err != nil {
			t.Fatal(err)
		}
		checkSurface(t, s, test.p, test.point, test.normal, tol)
	}
}

func TestCapsule(t *testing.T) {
	c, err := NewCapsule(CapsuleParms{Radius: 0.5, Height: 3, Axis: 1})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, c, r3.Vec{X: 2, Y: 0.5}, r3.Vec{X: 0.5, Y: 0.5}, r3.Vec{X: 1}, tol)
	checkSurface(t, c, r3.Vec{Y: 4}, r3.Vec{Y: 1.5}, r3.Vec{Y: 1}, tol)
	bb := c.Bounds()
	want := r3.Box{Min: r3.Vec{X: -0.5, Y: -1.5, Z: -0.5}, Max: r3.Vec{X: 0.5, Y: 1.5, Z: 0.5}}
	if !d3.Box(bb).Equals(d3.Box(want), tol) {
		t.Errorf("capsule bounds got %v, want %v", bb, want)
	}
}

func TestBox(t *testing.T) {
	b, err := NewBox(BoxParms{Size: d3.Elem(2)})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, b, r3.Vec{X: 3, Y: 0.5}, r3.Vec{X: 1, Y: 0.5}, r3.Vec{X: 1}, tol)
	checkSurface(t, b, r3.Vec{X: 2, Y: 2, Z: 2}, d3.Elem(1), r3.Unit(d3.Elem(1)), tol)
	// inside, nearest face is +Y.
	checkSurface(t, b, r3.Vec{Y: 0.9, X: 0.2}, r3.Vec{X: 0.2, Y: 1}, r3.Vec{Y: 1}, tol)
	checkSurface(t, b, r3.Vec{Z: -0.7}, r3.Vec{Z: -1}, r3.Vec{Z: -1}, tol)
}

func TestBoxRotated(t *testing.T) {
	// 90 degrees about Z: local X maps to world Y.
	q := d3.QuatFrom(math.Sqrt2/2, 0, 0, math.Sqrt2/2)
	b, err := NewBox(BoxParms{Size: r3.Vec{X: 2, Y: 4, Z: 6}, Pose: Pose{Rotation: q}})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, b, r3.Vec{Y: 5}, r3.Vec{Y: 1}, r3.Vec{Y: 1}, 1e-9)
	checkSurface(t, b, r3.Vec{X: 5}, r3.Vec{X: 2}, r3.Vec{X: 1}, 1e-9)
	bb := b.Bounds()
	want := r3.Box{Min: r3.Vec{X: -2, Y: -1, Z: -3}, Max: r3.Vec{X: 2, Y: 1, Z: 3}}
	if !d3.Box(bb).Equals(d3.Box(want), 1e-9) {
		t.Errorf("rotated box bounds got %v, want %v", bb, want)
	}
}

func TestTriangle(t *testing.T) {
	tri, err := NewTriangle(TriangleParms{Face: Face{{}, {Z: 1}, {X: 1}}})
	if err != nil {
		t.Fatal(err)
	}
	// Two sided: the normal follows the query side.
	checkSurface(t, tri, r3.Vec{X: 0.2, Y: -1, Z: 0.2}, r3.Vec{X: 0.2, Z: 0.2}, r3.Vec{Y: -1}, tol)
	checkSurface(t, tri, r3.Vec{X: 0.2, Y: 1, Z: 0.2}, r3.Vec{X: 0.2, Z: 0.2}, r3.Vec{Y: 1}, tol)
	// On the face the face normal is used.
	checkSurface(t, tri, r3.Vec{X: 0.2, Z: 0.2}, r3.Vec{X: 0.2, Z: 0.2}, r3.Vec{Y: 1}, tol)
	checkSurface(t, tri, r3.Vec{X: -1, Z: -1}, r3.Vec{}, r3.Unit(r3.Vec{X: -1, Z: -1}), tol)
}

func TestMeshCube(t *testing.T) {
	faces := cubeFaces(1)
	faces = append(faces, Face{{}, {}, {X: 1}}) // degenerate
	m, err := NewMesh(MeshParms{Faces: faces})
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 12 {
		t.Errorf("triangles got %d, want 12", m.Len())
	}
	if m.Vertices() != 8 {
		t.Errorf("welded vertices got %d, want 8", m.Vertices())
	}
	checkSurface(t, m, r3.Vec{Y: 3}, r3.Vec{Y: 1}, r3.Vec{Y: 1}, tol)
	checkSurface(t, m, r3.Vec{Y: 0.8, Z: 0.1}, r3.Vec{Y: 1, Z: 0.1}, r3.Vec{Y: 1}, tol)
	checkSurface(t, m, d3.Elem(2), d3.Elem(1), r3.Unit(d3.Elem(1)), tol)
}

func TestMeshMatchesBox(t *testing.T) {
	m, err := NewMesh(MeshParms{Faces: cubeFaces(1), Pose: Pose{Position: r3.Vec{X: 0.5}}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBox(BoxParms{Size: d3.Elem(2), Pose: Pose{Position: r3.Vec{X: 0.5}}})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		p := r3.Vec{X: 4*rng.Float64() - 1.5, Y: 4*rng.Float64() - 2, Z: 4*rng.Float64() - 2}
		got := signedDistance(m, p)
		want := signedDistance(b, p)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("point %v: mesh signed distance %g, box %g", p, got, want)
		}
	}
}

func TestMeshInvalid(t *testing.T) {
	_, err := NewMesh(MeshParms{Faces: []Face{{{}, {}, {}}}})
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("all degenerate faces: got %v, want ErrInvalidShape", err)
	}
	_, err = NewMesh(MeshParms{Faces: cubeFaces(1), WeldTolerance: -1})
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("negative weld tolerance: got %v, want ErrInvalidShape", err)
	}
}

func TestEdgeMesh(t *testing.T) {
	em, err := NewEdgeMesh(EdgeMeshParms{
		Vertices: []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}},
		Edges:    [][2]int{{0, 1}, {1, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, em, r3.Vec{X: 0.5, Y: -1}, r3.Vec{X: 0.5}, r3.Vec{Y: -1}, tol)
	checkSurface(t, em, r3.Vec{X: 2, Y: 0.5}, r3.Vec{X: 1, Y: 0.5}, r3.Vec{X: 1}, tol)
	checkSurface(t, em, r3.Vec{X: -3}, r3.Vec{}, r3.Vec{X: -1}, tol)

	_, err = NewEdgeMesh(EdgeMeshParms{Vertices: []r3.Vec{{}}, Edges: [][2]int{{0, 1}}})
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("out of range edge: got %v, want ErrInvalidShape", err)
	}
}

func TestNearestPrimitiveMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	randVec := func(scale float64) r3.Vec {
		return r3.Vec{X: scale * (rng.Float64() - 0.5), Y: scale * (rng.Float64() - 0.5), Z: scale * (rng.Float64() - 0.5)}
	}
	// A few long primitives give the index a large reach, many short ones
	// sit close to the queries.
	var faces []Face
	var verts []r3.Vec
	var edges [][2]int
	for i := 0; i < 60; i++ {
		size := 0.3
		if i%15 == 0 {
			size = 20
		}
		c := randVec(10)
		faces = append(faces, Face{r3.Add(c, randVec(size)), r3.Add(c, randVec(size)), r3.Add(c, randVec(size))})
		edges = append(edges, [2]int{len(verts), len(verts) + 1})
		verts = append(verts, r3.Add(c, randVec(size)), r3.Add(c, randVec(size)))
	}
	m, err := NewMesh(MeshParms{Faces: faces})
	if err != nil {
		t.Fatal(err)
	}
	em, err := NewEdgeMesh(EdgeMeshParms{Vertices: verts, Edges: edges})
	if err != nil {
		t.Fatal(err)
	}
	meshDist := func(p r3.Vec) float64 {
		best := math.Inf(1)
		for _, f := range faces {
			tri := d3.NewTriangle(f)
			c, _ := tri.Closest(p)
			best = math.Min(best, r3.Norm(r3.Sub(p, c)))
		}
		return best
	}
	edgeDist := func(p r3.Vec) float64 {
		best := math.Inf(1)
		for _, e := range edges {
			c, _ := d3.ClosestOnSegment(p, verts[e[0]], verts[e[1]])
			best = math.Min(best, r3.Norm(r3.Sub(p, c)))
		}
		return best
	}
	for _, test := range []struct {
		name  string
		shape Shape
		brute func(r3.Vec) float64
	}{
		{name: "mesh", shape: m, brute: meshDist},
		{name: "edges", shape: em, brute: edgeDist},
	} {
		for i := 0; i < 400; i++ {
			p := r3.Add(faces[rng.Intn(len(faces))][0], randVec(1.5))
			sp := test.shape.Evaluate(p, 0, d3.Identity)
			got := r3.Norm(r3.Sub(p, sp.Point))
			want := test.brute(p)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("%s: point %v closest distance got %g, want %g", test.name, p, got, want)
			}
		}
	}
}

func TestNearestPrimitiveSmallDistractor(t *testing.T) {
	// The long primitive has a centroid far from the query, the short
	// one is near the query but farther from it than the long one.
	em, err := NewEdgeMesh(EdgeMeshParms{
		Vertices: []r3.Vec{{X: -10}, {X: 10}, {X: 10.4, Y: 0.5}, {X: 10.4, Y: 0.6}},
		Edges:    [][2]int{{0, 1}, {2, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, em, r3.Vec{X: 10.4}, r3.Vec{X: 10}, r3.Vec{X: 1}, tol)

	m, err := NewMesh(MeshParms{Faces: []Face{
		{{X: -10, Z: 1}, {X: 10}, {X: -10, Z: -1}},
		{{X: 10.4, Y: 0.5, Z: -0.05}, {X: 10.4, Y: 0.5, Z: 0.05}, {X: 10.4, Y: 0.6}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	sp := m.Evaluate(r3.Vec{X: 10.4}, 0, d3.Identity)
	if !d3.EqualWithin(sp.Point, r3.Vec{X: 10}, tol) {
		t.Errorf("mesh closest got %v, want %v", sp.Point, r3.Vec{X: 10})
	}
}

func TestSDF(t *testing.T) {
	s, err := NewSDF(SDFParms{Field: sphereField(1, 1.5)})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, s, r3.Vec{Y: 2}, r3.Vec{Y: 1}, r3.Vec{Y: 1}, 1e-6)
	checkSurface(t, s, r3.Vec{X: 0.3, Z: 0.4}, r3.Vec{X: 0.6, Z: 0.8}, r3.Vec{X: 0.6, Z: 0.8}, 1e-6)
}

func TestGridMatchesField(t *testing.T) {
	f := sphereField(1, 1.5)
	g, err := SampleGrid(f, 0.0625, 3)
	if err != nil {
		t.Fatal(err)
	}
	if dims := g.Dims(); dims != [3]int{49, 49, 49} {
		t.Errorf("grid dims got %v, want [49 49 49]", dims)
	}
	for _, p := range []r3.Vec{
		{X: 1}, {Y: -0.7}, {X: 0.5, Y: 0.5, Z: 0.5}, {X: 1.2, Z: -0.9}, {X: -1.5, Y: 1.5, Z: 1.5},
	} {
		got, want := g.Evaluate(p), f.Evaluate(p)
		if math.Abs(got-want) > 5e-3 {
			t.Errorf("grid at %v got %g, want %g", p, got, want)
		}
	}
	// Outside the lattice the distance to the bounds is added.
	if got := g.Evaluate(r3.Vec{Y: 3}); math.Abs(got-2) > 1e-6 {
		t.Errorf("grid outside bounds got %g, want 2", got)
	}

	s, err := NewSDF(SDFParms{Field: g})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, s, r3.Vec{Y: 1.3}, r3.Vec{Y: 1}, r3.Vec{Y: 1}, 5e-3)
}

func TestGridFromShape(t *testing.T) {
	b, err := NewBox(BoxParms{Size: r3.Vec{X: 2, Y: 1, Z: 1}, ContactOffset: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	g, err := SampleGrid(Signed(b), 0.05, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		p    r3.Vec
		want float64
	}{
		{r3.Vec{X: 1.1}, 0},
		{r3.Vec{Y: 0.55}, -0.05},
		{r3.Vec{Y: 0.3}, -0.3},
	} {
		if got := g.Evaluate(test.p); math.Abs(got-test.want) > 1e-3 {
			t.Errorf("baked box at %v got %g, want %g", test.p, got, test.want)
		}
	}
}

func TestGridNotFinite(t *testing.T) {
	f := FieldFunc{
		F: func(p r3.Vec) float64 {
			if p.X > 0.5 {
				return math.NaN()
			}
			return p.X
		},
		Box: r3.Box{Max: d3.Elem(1)},
	}
	_, err := SampleGrid(f, 0.25, 2)
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("got %v, want ErrInvalidShape", err)
	}
	_, err = SampleGrid(FieldFunc{F: func(r3.Vec) float64 { return 1e300 }, Box: r3.Box{Max: d3.Elem(1)}}, 0.5, 1)
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("float32 overflow: got %v, want ErrInvalidShape", err)
	}
}

func TestHeightfieldFlat(t *testing.T) {
	h, err := NewHeightfield(HeightfieldParms{
		Heights: [][]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}},
		SizeX:   2, SizeZ: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	checkSurface(t, h, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, r3.Vec{X: 0.5, Z: 0.5}, r3.Vec{Y: 1}, tol)
	// Below the terrain points are pushed up.
	checkSurface(t, h, r3.Vec{X: 1.5, Y: -0.3, Z: 0.5}, r3.Vec{X: 1.5, Z: 0.5}, r3.Vec{Y: 1}, tol)
	checkSurface(t, h, r3.Vec{X: 1.2, Z: 1.7}, r3.Vec{X: 1.2, Z: 1.7}, r3.Vec{Y: 1}, tol)
}

func TestHeightfieldSlope(t *testing.T) {
	// y = x over a 3x3 lattice of unit cells.
	h, err := NewHeightfield(HeightfieldParms{
		Heights: [][]float64{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}},
		SizeX:   2, SizeZ: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := h.Height(0.5, 0.25); math.Abs(got-0.5) > tol {
		t.Errorf("height got %g, want 0.5", got)
	}
	n := r3.Unit(r3.Vec{X: -1, Y: 1})
	checkSurface(t, h, r3.Vec{X: 1, Y: 2, Z: 1}, r3.Vec{X: 1.5, Y: 1.5, Z: 1}, n, tol)
	checkSurface(t, h, r3.Vec{X: 1, Y: 0.5, Z: 1}, r3.Vec{X: 0.75, Y: 0.75, Z: 1}, n, tol)
}

func TestInvalidParms(t *testing.T) {
	for name, fn := range map[string]func() error{
		"sphere radius": func() error { _, err := NewSphere(SphereParms{}); return err },
		"negative scale": func() error {
			_, err := NewSphere(SphereParms{Radius: 1, Pose: Pose{Scale: -1}})
			return err
		},
		"capsule axis": func() error { _, err := NewCapsule(CapsuleParms{Radius: 1, Axis: 3}); return err },
		"box size":     func() error { _, err := NewBox(BoxParms{Size: r3.Vec{X: 1, Y: 1}}); return err },
		"triangle":     func() error { _, err := NewTriangle(TriangleParms{Face: Face{{}, {X: 1}, {X: 2}}}); return err },
		"offset": func() error {
			_, err := NewSphere(SphereParms{Radius: 1, ContactOffset: -1})
			return err
		},
		"ragged heightfield": func() error {
			_, err := NewHeightfield(HeightfieldParms{Heights: [][]float64{{0, 0}, {0}}, SizeX: 1, SizeZ: 1})
			return err
		},
		"nil field": func() error { _, err := NewSDF(SDFParms{}); return err },
	} {
		if err := fn(); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("%s: got %v, want ErrInvalidShape", name, err)
		}
	}
}

func checkSurface(t *testing.T, s Shape, p, point, normal r3.Vec, tol float64) {
	t.Helper()
	sp := s.Evaluate(p, 0, d3.Identity)
	if !d3.EqualWithin(sp.Point, point, tol) {
		t.Errorf("query %v: point got %v, want %v", p, sp.Point, point)
	}
	if !d3.EqualWithin(sp.Normal, normal, tol) {
		t.Errorf("query %v: normal got %v, want %v", p, sp.Normal, normal)
	}
}

func signedDistance(s Shape, p r3.Vec) float64 {
	sp := s.Evaluate(p, 0, d3.Identity)
	return r3.Dot(sp.Normal, r3.Sub(p, sp.Point))
}

func sphereField(r, half float64) Field {
	return FieldFunc{
		F:   func(p r3.Vec) float64 { return r3.Norm(p) - r },
		Box: r3.Box{Min: d3.Elem(-half), Max: d3.Elem(half)},
	}
}

// cubeFaces returns 12 outward wound triangles of a cube of half side h.
func cubeFaces(h float64) []Face {
	v := func(x, y, z float64) r3.Vec { return r3.Vec{X: x * h, Y: y * h, Z: z * h} }
	quads := [][4]r3.Vec{
		{v(-1, -1, -1), v(1, -1, -1), v(1, 1, -1), v(-1, 1, -1)},
		{v(-1, -1, 1), v(1, -1, 1), v(1, 1, 1), v(-1, 1, 1)},
		{v(-1, -1, -1), v(1, -1, -1), v(1, -1, 1), v(-1, -1, 1)},
		{v(-1, 1, -1), v(1, 1, -1), v(1, 1, 1), v(-1, 1, 1)},
		{v(-1, -1, -1), v(-1, 1, -1), v(-1, 1, 1), v(-1, -1, 1)},
		{v(1, -1, -1), v(1, 1, -1), v(1, 1, 1), v(1, -1, 1)},
	}
	var faces []Face
	for _, q := range quads {
		for _, f := range []Face{{q[0], q[1], q[2]}, {q[0], q[2], q[3]}} {
			n := r3.Cross(r3.Sub(f[1], f[0]), r3.Sub(f[2], f[0]))
			c := r3.Add(r3.Add(f[0], f[1]), f[2])
			if r3.Dot(n, c) < 0 {
				f[1], f[2] = f[2], f[1]
			}
			faces = append(faces, f)
		}
	}
	return faces
}
