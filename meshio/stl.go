// Package meshio reads and writes triangle meshes for mesh colliders.
package meshio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/chewxy/math32"
	"github.com/soypat/contact/collider"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNormalMismatch is returned by ReadSTL alongside the triangles when
// stored normals disagree with the normals computed from the vertices.
// Many exporters write sloppy normals, so the triangles may still be fine.
var ErrNormalMismatch = errors.New("stl triangle normal not approximately equal to normal calculated from vertices")

const (
	stlTriangleSize = 50
	// maxNormalMismatches aborts reading files whose normals are garbage.
	maxNormalMismatches = 10_000
)

// LoadSTL reads a binary STL file.
func LoadSTL(path string) ([]collider.Face, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	faces, err := ReadSTL(bufio.NewReader(fp))
	if err != nil {
		return faces, fmt.Errorf("%s: %w", path, err)
	}
	return faces, nil
}

// SaveSTL writes faces to a binary STL file at path.
func SaveSTL(path string, faces []collider.Face) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fp)
	err = WriteSTL(w, faces)
	if err == nil {
		err = w.Flush()
	}
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteSTL writes faces to w in binary STL format. Normals are
// calculated from the vertex winding.
func WriteSTL(w io.Writer, faces []collider.Face) error {
	if len(faces) == 0 {
		return errors.New("empty face slice")
	}
	if uint64(len(faces)) > math.MaxUint32 {
		return fmt.Errorf("%d faces do not fit in a binary stl", len(faces))
	}
	header := stlHeader{Count: uint32(len(faces))}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	var b [stlTriangleSize]byte
	for _, f := range faces {
		n := r3.Cross(r3.Sub(f[1], f[0]), r3.Sub(f[2], f[0]))
		if norm := r3.Norm(n); norm > 0 {
			n = r3.Scale(1/norm, n)
		}
		d := stlTriangle{Normal: to3F32(n)}
		for i := range f {
			d.Vertex[i] = to3F32(f[i])
		}
		d.put(b[:])
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadSTL reads a binary STL stream. Triangles with NaN or infinite
// components and degenerate triangles fail the read. Normal mismatches
// do not: the triangles are returned along with ErrNormalMismatch.
func ReadSTL(r io.Reader) (output []collider.Face, readErr error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("encountered EOF while reading stl header")
		}
		return nil, fmt.Errorf("stl header read failed: %w", err)
	}
	if header.Count == 0 {
		return nil, errors.New("stl header indicates 0 triangles present")
	}
	var (
		buf            [stlTriangleSize]byte
		d              stlTriangle
		i              int
		normMismatches int
	)
	defer func() {
		if readErr != nil && !errors.Is(readErr, ErrNormalMismatch) {
			readErr = fmt.Errorf("%d/%d stl triangles read: %w", i, header.Count, readErr)
		}
	}()
	// Do not trust the header count for preallocation.
	output = make([]collider.Face, 0, min(int(header.Count), 1<<16))
	for i = 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		d.get(buf[:])
		if err := d.validate(); err != nil {
			if !errors.Is(err, ErrNormalMismatch) {
				return nil, err
			}
			normMismatches++
			if normMismatches > maxNormalMismatches {
				return output, fmt.Errorf("got too many normal vector mismatches (%d): %w", normMismatches, err)
			}
			readErr = err
		}
		output = append(output, d.face())
	}
	return output, readErr
}

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal [3]float32
	Vertex [3][3]float32
}

func (t *stlTriangle) put(b []byte) {
	_ = b[stlTriangleSize-1] // early bounds check
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex[0])
	put3F32(b[24:], t.Vertex[1])
	put3F32(b[36:], t.Vertex[2])
	binary.LittleEndian.PutUint16(b[48:], 0) // attribute byte count
}

func (t *stlTriangle) get(b []byte) {
	_ = b[stlTriangleSize-1]
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex[0])
	get3F32(b[24:], &t.Vertex[1])
	get3F32(b[36:], &t.Vertex[2])
	// attributes are ignored.
}

func (t *stlTriangle) validate() error {
	const epsilon = 1e-12
	const normTol = 5e-2
	if bad3F32(t.Normal) {
		return errors.New("inf/NaN stl triangle normal")
	}
	for _, v := range t.Vertex {
		if bad3F32(v) {
			return errors.New("inf/NaN stl triangle vertex")
		}
	}
	if t.degenerate(epsilon) {
		return errors.New("stl triangle is degenerate")
	}
	if t.Normal == ([3]float32{}) {
		// Zero normals are allowed by the format.
		return nil
	}
	calc := t.normalFromVertices()
	neg := [3]float32{-calc[0], -calc[1], -calc[2]}
	if !equalWithin3F32(calc, t.Normal, normTol) && !equalWithin3F32(neg, t.Normal, normTol) {
		return ErrNormalMismatch
	}
	return nil
}

func (t *stlTriangle) normalFromVertices() [3]float32 {
	// Scaled up to keep small triangles away from the unit epsilon.
	v1 := r3.Scale(10, r3From3F32(t.Vertex[0]))
	v2 := r3.Scale(10, r3From3F32(t.Vertex[1]))
	v3 := r3.Scale(10, r3From3F32(t.Vertex[2]))
	return to3F32(r3.Unit(r3.Cross(r3.Sub(v2, v1), r3.Sub(v3, v1))))
}

// degenerate checks for coincident vertices.
func (t *stlTriangle) degenerate(tol float32) bool {
	return equalWithin3F32(t.Vertex[0], t.Vertex[1], tol) ||
		equalWithin3F32(t.Vertex[1], t.Vertex[2], tol) ||
		equalWithin3F32(t.Vertex[2], t.Vertex[0], tol)
}

func (t *stlTriangle) face() collider.Face {
	return collider.Face{
		r3From3F32(t.Vertex[0]),
		r3From3F32(t.Vertex[1]),
		r3From3F32(t.Vertex[2]),
	}
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}

func equalWithin3F32(a, b [3]float32, tol float32) bool {
	return math32.Abs(a[0]-b[0]) <= tol &&
		math32.Abs(a[1]-b[1]) <= tol &&
		math32.Abs(a[2]-b[2]) <= tol
}

func r3From3F32(f [3]float32) r3.Vec {
	return r3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}

func to3F32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
