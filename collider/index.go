package collider

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// primitiveIndex is a k-d tree over primitive centroids used to find
// every primitive that could hold the closest point to a query.
// reach is the largest distance between a primitive centroid and any of
// its points, so a primitive at centroid distance dc is at least dc-reach away.
type primitiveIndex struct {
	tree  *kdtree.Tree
	reach float64
}

func newPrimitiveIndex(centroids []r3.Vec, reach float64) primitiveIndex {
	pts := make(kdPoints, len(centroids))
	for i, c := range centroids {
		pts[i] = kdPoint{C: c, idx: i}
	}
	// kdtree.New reorders pts, primitives are tracked through idx.
	return primitiveIndex{tree: kdtree.New(pts, false), reach: reach}
}

// nearest returns the primitive closest to q. dist2 returns the exact
// squared distance from q to a primitive and is only called on candidates.
func (ix *primitiveIndex) nearest(q r3.Vec, dist2 func(idx int) float64) (best int) {
	query := &kdPoint{C: q}
	got, _ := ix.tree.Nearest(query)
	best = got.(*kdPoint).idx
	bestDist := dist2(best)
	// Centroids farther than the best distance plus reach cannot hold a
	// closer point. The keeper radius is squared like kdPoint.Distance.
	search := math.Sqrt(bestDist) + ix.reach + 1e-9
	keep := kdtree.NewDistKeeper(search * search)
	ix.tree.NearestSet(keep, query)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue // heap sentinel.
		}
		idx := cd.Comparable.(*kdPoint).idx
		if idx == best {
			continue
		}
		if d := dist2(idx); d < bestDist {
			best, bestDist = idx, d
		}
	}
	return best
}

type kdPoint struct {
	C   r3.Vec
	idx int
}

func (p *kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*kdPoint)
	switch d {
	case 0:
		return p.C.X - q.C.X
	case 1:
		return p.C.Y - q.C.Y
	case 2:
		return p.C.Z - q.C.Z
	}
	panic("unreachable")
}

func (p *kdPoint) Dims() int { return 3 }

// Distance returns the squared euclidean distance between centroids.
func (p *kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(*kdPoint)
	return r3.Norm2(r3.Sub(p.C, q.C))
}

type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable { return &p[i] }
func (p kdPoints) Len() int                      { return len(p) }
func (p kdPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// Pivot partitions the list based on the dimension specified.
func (p kdPoints) Pivot(d kdtree.Dim) int {
	pl := kdPlane{dim: d, points: p}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

type kdPlane struct {
	dim    kdtree.Dim
	points kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	return p.points[i].Compare(&p.points[j], p.dim) < 0
}
func (p kdPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}
func (p kdPlane) Len() int {
	return len(p.points)
}
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

// reachOf returns the largest distance from c to any of pts.
func reachOf(c r3.Vec, pts ...r3.Vec) float64 {
	r := 0.0
	for _, p := range pts {
		r = math.Max(r, r3.Norm(r3.Sub(p, c)))
	}
	return r
}
