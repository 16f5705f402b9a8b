// Package broadphase finds the simplex and collider pairs whose bounding
// boxes overlap. The narrow phase only optimizes those pairs.
package broadphase

import (
	"math"
	"sort"

	"github.com/soypat/contact"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Bounder is implemented by anything with world space bounds, such as
// collider shapes.
type Bounder interface {
	Bounds() r3.Box
}

// Pair is a candidate contact between a simplex and a collider, both
// given by their index.
type Pair struct {
	Simplex  int
	Collider int
}

// pairByLessThan sorts pairs by simplex then collider.
type pairByLessThan []Pair

func (a pairByLessThan) Len() int      { return len(a) }
func (a pairByLessThan) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a pairByLessThan) Less(i, j int) bool {
	if a[i].Simplex != a[j].Simplex {
		return a[i].Simplex < a[j].Simplex
	}
	return a[i].Collider < a[j].Collider
}

// SimplexBounds returns the box enclosing the thickened particles of a
// simplex, fattened by margin on every side.
func SimplexBounds(ps *contact.Particles, simplex []int, margin float64) r3.Box {
	bb := d3.EmptyBox()
	for _, idx := range simplex {
		r := 0.0
		if ps.Radii != nil {
			r = ps.Radii[idx]
		}
		p := ps.Positions[idx]
		bb = bb.Extend(d3.Box{Min: r3.Sub(p, d3.Elem(r)), Max: r3.Add(p, d3.Elem(r))})
	}
	return r3.Box(bb.Enlarge(d3.Elem(2 * margin)))
}

type proxy struct {
	bb       d3.Box
	id       int
	collider bool
}

// Find returns every simplex and collider pair whose boxes overlap, sorted
// by simplex then collider. Simplex boxes are fattened by margin so
// contacts can be generated slightly before touching. Boxes are swept
// along the X axis; touching boxes overlap.
func Find(ps *contact.Particles, simplices [][]int, shapes []Bounder, margin float64) []Pair {
	proxies := make([]proxy, 0, len(simplices)+len(shapes))
	for i, s := range simplices {
		proxies = append(proxies, proxy{bb: d3.Box(SimplexBounds(ps, s, margin)), id: i})
	}
	for i, s := range shapes {
		bb := d3.Box(s.Bounds())
		if math.IsNaN(bb.Min.X) || math.IsNaN(bb.Max.X) {
			continue
		}
		proxies = append(proxies, proxy{bb: bb, id: i, collider: true})
	}
	sort.Slice(proxies, func(i, j int) bool {
		return proxies[i].bb.Min.X < proxies[j].bb.Min.X
	})

	var pairs []Pair
	// active holds proxies whose X interval may still overlap later ones.
	var active []proxy
	for _, p := range proxies {
		n := 0
		for _, a := range active {
			if a.bb.Max.X < p.bb.Min.X {
				continue // left behind by the sweep.
			}
			active[n] = a
			n++
			if a.collider == p.collider || !a.bb.Overlaps(p.bb) {
				continue
			}
			if p.collider {
				pairs = append(pairs, Pair{Simplex: a.id, Collider: p.id})
			} else {
				pairs = append(pairs, Pair{Simplex: p.id, Collider: a.id})
			}
		}
		active = append(active[:n], p)
	}
	sort.Sort(pairByLessThan(pairs))
	return pairs
}
