// Package scene loads particles, simplices and colliders from YAML files.
//
// A scene file looks like:
//
//	particles:
//	  - {position: [0, 1, 0], radius: 0.05}
//	  - {position: [1, 1, 0], radius: 0.05}
//	simplices:
//	  - [0, 1]
//	colliders:
//	  - name: floor
//	    kind: box
//	    size: [10, 1, 10]
//	    pose: {position: [0, -0.5, 0]}
//
// Mesh colliders may reference binary STL files relative to the scene file.
package scene

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soypat/contact"
	"github.com/soypat/contact/collider"
	"github.com/soypat/contact/internal/d3"
	"github.com/soypat/contact/meshio"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScene is wrapped by every scene validation error.
var ErrInvalidScene = errors.New("invalid scene")

// Collider kinds.
const (
	KindSphere      = "sphere"
	KindCapsule     = "capsule"
	KindBox         = "box"
	KindTriangle    = "triangle"
	KindMesh        = "mesh"
	KindEdges       = "edges"
	KindHeightfield = "heightfield"
	KindField       = "field"
)

// Vec is a 3 vector written as [x, y, z].
type Vec [3]float64

// R3 converts v to a gonum vector.
func (v Vec) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// Quat is a rotation quaternion written as [w, x, y, z]. The zero
// value is the identity rotation.
type Quat [4]float64

// Rotation converts q to a gonum rotation.
func (q Quat) Rotation() r3.Rotation {
	if q == (Quat{}) {
		return d3.Identity
	}
	return d3.QuatFrom(q[0], q[1], q[2], q[3])
}

// Scene is the file representation of a contact problem.
type Scene struct {
	Particles []Particle `yaml:"particles"`
	Simplices [][]int    `yaml:"simplices"`
	Colliders []Collider `yaml:"colliders"`

	// dir resolves relative file references.
	dir string
}

// Particle is a thick oriented point.
type Particle struct {
	Position    Vec     `yaml:"position"`
	Radius      float64 `yaml:"radius"`
	Orientation Quat    `yaml:"orientation"`
}

// Pose places a collider in the world.
type Pose struct {
	Position Vec     `yaml:"position"`
	Rotation Quat    `yaml:"rotation"`
	Scale    float64 `yaml:"scale"`
}

// Collider describes one shape. Which fields apply depends on Kind.
type Collider struct {
	Name          string  `yaml:"name"`
	Kind          string  `yaml:"kind"`
	Pose          Pose    `yaml:"pose"`
	ContactOffset float64 `yaml:"contact_offset"`

	// sphere, capsule and box.
	Center Vec     `yaml:"center"`
	Radius float64 `yaml:"radius"`
	Height float64 `yaml:"height"`
	Axis   int     `yaml:"axis"`
	Size   Vec     `yaml:"size"`

	// triangle, mesh and edges.
	Vertices      []Vec    `yaml:"vertices"`
	Faces         [][3]int `yaml:"faces"`
	Edges         [][2]int `yaml:"edges"`
	STL           string   `yaml:"stl"`
	WeldTolerance float64  `yaml:"weld_tolerance"`

	// heightfield.
	Heights [][]float64 `yaml:"heights"`
	SizeX   float64     `yaml:"size_x"`
	SizeZ   float64     `yaml:"size_z"`

	// field bakes Shape into a grid with the given lattice spacing.
	Shape      *Collider `yaml:"shape"`
	Resolution float64   `yaml:"resolution"`
}

// Load reads and parses a scene file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scene. dir is the directory STL paths are relative to.
// Unknown fields are rejected.
func Parse(data []byte, dir string) (*Scene, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scene
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}
	s.dir = dir
	return &s, nil
}

// Build validates the scene and constructs its particles, simplices and
// colliders. Errors name the offending entry.
func (s *Scene) Build() (*contact.Particles, [][]int, []collider.Shape, error) {
	ps := &contact.Particles{
		Positions:    make([]r3.Vec, len(s.Particles)),
		Orientations: make([]r3.Rotation, len(s.Particles)),
		Radii:        make([]float64, len(s.Particles)),
	}
	for i, p := range s.Particles {
		pos := p.Position.R3()
		if !d3.IsFinite(pos) {
			return nil, nil, nil, fmt.Errorf("%w: particle %d position %v not finite", ErrInvalidScene, i, p.Position)
		}
		if p.Radius < 0 {
			return nil, nil, nil, fmt.Errorf("%w: particle %d has negative radius %g", ErrInvalidScene, i, p.Radius)
		}
		ps.Positions[i] = pos
		ps.Orientations[i] = d3.Normalize(p.Orientation.Rotation())
		ps.Radii[i] = p.Radius
	}
	for i, simplex := range s.Simplices {
		if len(simplex) < 1 || len(simplex) > contact.MaxSimplexSize {
			return nil, nil, nil, fmt.Errorf("%w: simplex %d has %d particles, want 1 to %d", ErrInvalidScene, i, len(simplex), contact.MaxSimplexSize)
		}
		for _, idx := range simplex {
			if idx < 0 || idx >= len(s.Particles) {
				return nil, nil, nil, fmt.Errorf("%w: simplex %d references particle %d of %d", ErrInvalidScene, i, idx, len(s.Particles))
			}
		}
	}
	shapes := make([]collider.Shape, len(s.Colliders))
	for i := range s.Colliders {
		c := &s.Colliders[i]
		shape, err := s.buildCollider(c)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: collider %d %q: %w", ErrInvalidScene, i, c.Name, err)
		}
		shapes[i] = shape
	}
	return ps, s.Simplices, shapes, nil
}

func (s *Scene) buildCollider(c *Collider) (collider.Shape, error) {
	pose := collider.Pose{
		Position: c.Pose.Position.R3(),
		Rotation: c.Pose.Rotation.Rotation(),
		Scale:    c.Pose.Scale,
	}
	switch c.Kind {
	case KindSphere:
		return collider.NewSphere(collider.SphereParms{Pose: pose, ContactOffset: c.ContactOffset, Center: c.Center.R3(), Radius: c.Radius})
	case KindCapsule:
		return collider.NewCapsule(collider.CapsuleParms{
			Pose: pose, ContactOffset: c.ContactOffset,
			Center: c.Center.R3(), Radius: c.Radius, Height: c.Height, Axis: c.Axis,
		})
	case KindBox:
		return collider.NewBox(collider.BoxParms{Pose: pose, ContactOffset: c.ContactOffset, Center: c.Center.R3(), Size: c.Size.R3()})
	case KindTriangle:
		if len(c.Vertices) != 3 {
			return nil, fmt.Errorf("triangle needs 3 vertices, got %d", len(c.Vertices))
		}
		face := collider.Face{c.Vertices[0].R3(), c.Vertices[1].R3(), c.Vertices[2].R3()}
		return collider.NewTriangle(collider.TriangleParms{Pose: pose, ContactOffset: c.ContactOffset, Face: face})
	case KindMesh:
		faces, err := s.meshFaces(c)
		if err != nil {
			return nil, err
		}
		return collider.NewMesh(collider.MeshParms{Pose: pose, ContactOffset: c.ContactOffset, Faces: faces, WeldTolerance: c.WeldTolerance})
	case KindEdges:
		verts := make([]r3.Vec, len(c.Vertices))
		for i, v := range c.Vertices {
			verts[i] = v.R3()
		}
		return collider.NewEdgeMesh(collider.EdgeMeshParms{Pose: pose, ContactOffset: c.ContactOffset, Vertices: verts, Edges: c.Edges})
	case KindHeightfield:
		return collider.NewHeightfield(collider.HeightfieldParms{
			Pose: pose, ContactOffset: c.ContactOffset,
			Heights: c.Heights, SizeX: c.SizeX, SizeZ: c.SizeZ,
		})
	case KindField:
		if c.Shape == nil {
			return nil, errors.New("field needs a nested shape")
		}
		if c.Shape.Kind == KindField {
			return nil, errors.New("field shape cannot be another field")
		}
		inner, err := s.buildCollider(c.Shape)
		if err != nil {
			return nil, fmt.Errorf("field shape: %w", err)
		}
		grid, err := collider.SampleGrid(collider.Signed(inner), c.Resolution, 0)
		if err != nil {
			return nil, err
		}
		return collider.NewSDF(collider.SDFParms{Pose: pose, ContactOffset: c.ContactOffset, Field: grid})
	case "":
		return nil, errors.New("missing collider kind")
	}
	return nil, fmt.Errorf("unknown collider kind %q", c.Kind)
}

func (s *Scene) meshFaces(c *Collider) ([]collider.Face, error) {
	if c.STL != "" {
		if len(c.Faces) != 0 {
			return nil, errors.New("mesh has both stl and inline faces")
		}
		path := c.STL
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		faces, err := meshio.LoadSTL(path)
		if errors.Is(err, meshio.ErrNormalMismatch) {
			// Stored normals are not used.
			err = nil
		}
		return faces, err
	}
	faces := make([]collider.Face, len(c.Faces))
	for i, f := range c.Faces {
		for j, vi := range f {
			if vi < 0 || vi >= len(c.Vertices) {
				return nil, fmt.Errorf("face %d references vertex %d of %d", i, vi, len(c.Vertices))
			}
			faces[i][j] = c.Vertices[vi].R3()
		}
	}
	return faces, nil
}
