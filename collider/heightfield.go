package collider

import (
	"math"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// HeightfieldParms defines a terrain collider. Heights holds one row per
// Z sample and one column per X sample. The field spans [0,SizeX] along
// local X and [0,SizeZ] along local Z with heights along local Y.
type HeightfieldParms struct {
	Pose          Pose
	ContactOffset float64
	Heights       [][]float64
	SizeX, SizeZ  float64
}

// Heightfield is the distance function of a terrain. Each grid cell is
// split in two triangles along its (0,0)-(1,1) diagonal.
//
// Queries only visit the cells around the one under the query point, so
// distances are exact near the terrain and approximate for points far
// above steep terrain.
type Heightfield struct {
	base
	heights    []float64 // row major, rows along Z
	rows, cols int
	dx, dz     float64
	bb         d3.Box
}

var _ Shape = (*Heightfield)(nil)

// NewHeightfield returns a heightfield collider.
func NewHeightfield(parms HeightfieldParms) (*Heightfield, error) {
	rows := len(parms.Heights)
	if rows < 2 {
		return nil, shapeErr("heightfield needs at least 2 rows, got %d", rows)
	}
	cols := len(parms.Heights[0])
	if cols < 2 {
		return nil, shapeErr("heightfield needs at least 2 columns, got %d", cols)
	}
	if err := validPositive("heightfield size x", parms.SizeX); err != nil {
		return nil, err
	}
	if err := validPositive("heightfield size z", parms.SizeZ); err != nil {
		return nil, err
	}
	b, err := newBase(parms.Pose, parms.ContactOffset)
	if err != nil {
		return nil, err
	}
	h := &Heightfield{
		base:    b,
		heights: make([]float64, 0, rows*cols),
		rows:    rows,
		cols:    cols,
		dx:      parms.SizeX / float64(cols-1),
		dz:      parms.SizeZ / float64(rows-1),
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for r, row := range parms.Heights {
		if len(row) != cols {
			return nil, shapeErr("heightfield row %d has %d columns, want %d", r, len(row), cols)
		}
		for c, y := range row {
			if math.IsNaN(y) || math.IsInf(y, 0) {
				return nil, shapeErr("heightfield height at row %d column %d is not finite", r, c)
			}
			lo, hi = math.Min(lo, y), math.Max(hi, y)
		}
		h.heights = append(h.heights, row...)
	}
	h.bb = d3.Box{
		Min: r3.Vec{X: 0, Y: lo, Z: 0},
		Max: r3.Vec{X: parms.SizeX, Y: hi, Z: parms.SizeZ},
	}
	return h, nil
}

// Evaluate projects p onto the terrain. The normal points up out of the
// terrain, so points below the surface are pushed up.
func (h *Heightfield) Evaluate(p r3.Vec, _ float64, _ r3.Rotation) contact.SurfacePoint {
	lp := h.local(p)
	c0, r0 := h.cell(lp)
	best := math.MaxFloat64
	var closest, faceN r3.Vec
	for r := max(0, r0-1); r <= min(h.rows-2, r0+1); r++ {
		for c := max(0, c0-1); c <= min(h.cols-2, c0+1); c++ {
			for _, f := range h.cellFaces(c, r) {
				tri := d3.NewTriangle(f)
				cp, _ := tri.Closest(lp)
				if d := r3.Norm2(r3.Sub(lp, cp)); d < best {
					best, closest, faceN = d, cp, tri.Normal()
				}
			}
		}
	}
	d := r3.Sub(lp, closest)
	if best < d3.Epsilon {
		return h.surface(closest, faceN)
	}
	if h.below(lp) {
		d = r3.Scale(-1, d)
	}
	return h.surface(closest, d)
}

// Bounds returns the world space bounds of the terrain.
func (h *Heightfield) Bounds() r3.Box {
	return h.bounds(h.bb)
}

// Height returns the interpolated local height at local coordinates x, z.
// Coordinates outside the field are clamped to its border.
func (h *Heightfield) Height(x, z float64) float64 {
	c, r := h.cell(r3.Vec{X: x, Z: z})
	fx := clampUnit(x/h.dx - float64(c))
	fz := clampUnit(z/h.dz - float64(r))
	h00, h10 := h.at(c, r), h.at(c+1, r)
	h01, h11 := h.at(c, r+1), h.at(c+1, r+1)
	if fz >= fx {
		return h00 + fz*(h01-h00) + fx*(h11-h01)
	}
	return h00 + fx*(h10-h00) + fz*(h11-h10)
}

func (h *Heightfield) below(lp r3.Vec) bool {
	if lp.X < 0 || lp.X > h.bb.Max.X || lp.Z < 0 || lp.Z > h.bb.Max.Z {
		return false
	}
	return lp.Y < h.Height(lp.X, lp.Z)
}

// cell returns the column and row of the cell under lp, clamped to the field.
func (h *Heightfield) cell(lp r3.Vec) (c, r int) {
	c = int(math.Floor(lp.X / h.dx))
	r = int(math.Floor(lp.Z / h.dz))
	return min(max(c, 0), h.cols-2), min(max(r, 0), h.rows-2)
}

func (h *Heightfield) at(c, r int) float64 {
	return h.heights[r*h.cols+c]
}

func (h *Heightfield) vertex(c, r int) r3.Vec {
	return r3.Vec{X: float64(c) * h.dx, Y: h.at(c, r), Z: float64(r) * h.dz}
}

// cellFaces returns the two upward facing triangles of a cell.
func (h *Heightfield) cellFaces(c, r int) [2]Face {
	p00, p10 := h.vertex(c, r), h.vertex(c+1, r)
	p01, p11 := h.vertex(c, r+1), h.vertex(c+1, r+1)
	return [2]Face{{p00, p01, p11}, {p00, p11, p10}}
}

func clampUnit(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
