package broadphase

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/soypat/contact"
	"github.com/soypat/contact/collider"
	"github.com/soypat/contact/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

type fixedBounds r3.Box

func (b fixedBounds) Bounds() r3.Box { return r3.Box(b) }

func TestFind(t *testing.T) {
	ps := &contact.Particles{
		Positions: []r3.Vec{{X: 0}, {X: 1}, {X: 10}, {X: 10, Y: 5}},
		Radii:     []float64{0.1, 0.1, 0.5, 0.5},
	}
	simplices := [][]int{{0, 1}, {2}, {3}}
	floor, err := collider.NewBox(collider.BoxParms{Center: r3.Vec{X: 5, Y: -1.1}, Size: r3.Vec{X: 20, Y: 1, Z: 20}})
	if err != nil {
		t.Fatal(err)
	}
	ball, err := collider.NewSphere(collider.SphereParms{Pose: collider.Pose{Position: r3.Vec{X: 10, Y: 6}}, Radius: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	shapes := []Bounder{ball, floor}

	// Without margin only the top particle touches the ball.
	got := Find(ps, simplices, shapes, 0)
	want := []Pair{{Simplex: 2, Collider: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("no margin: got %v, want %v", got, want)
	}
	// Floor top sits at y=-0.6.
	got = Find(ps, simplices, shapes, 0.6)
	want = []Pair{{Simplex: 0, Collider: 1}, {Simplex: 1, Collider: 1}, {Simplex: 2, Collider: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("margin: got %v, want %v", got, want)
	}
}

func TestFindMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randVec := func(scale float64) r3.Vec {
		return r3.Vec{X: scale * rng.Float64(), Y: scale * rng.Float64(), Z: scale * rng.Float64()}
	}
	ps := &contact.Particles{}
	var simplices [][]int
	for i := 0; i < 60; i++ {
		var s []int
		base := randVec(20)
		for j := 0; j < 1+rng.Intn(contact.MaxSimplexSize); j++ {
			s = append(s, len(ps.Positions))
			ps.Positions = append(ps.Positions, r3.Add(base, randVec(1)))
			ps.Radii = append(ps.Radii, 0.2*rng.Float64())
		}
		simplices = append(simplices, s)
	}
	var shapes []Bounder
	for i := 0; i < 40; i++ {
		min := randVec(20)
		shapes = append(shapes, fixedBounds{Min: min, Max: r3.Add(min, randVec(3))})
	}
	const margin = 0.1
	var want []Pair
	for i, s := range simplices {
		sb := d3.Box(SimplexBounds(ps, s, margin))
		for j, shape := range shapes {
			if sb.Overlaps(d3.Box(shape.Bounds())) {
				want = append(want, Pair{Simplex: i, Collider: j})
			}
		}
	}
	got := Find(ps, simplices, shapes, margin)
	if len(want) == 0 {
		t.Fatal("degenerate test: no overlapping pairs")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %d pairs, want %d\ngot  %v\nwant %v", len(got), len(want), got, want)
	}
}

func TestSimplexBounds(t *testing.T) {
	ps := &contact.Particles{Positions: []r3.Vec{{X: -1}, {X: 1, Y: 2}}}
	got := SimplexBounds(ps, []int{0, 1}, 0.5)
	want := r3.Box{Min: r3.Vec{X: -1.5, Y: -0.5, Z: -0.5}, Max: r3.Vec{X: 1.5, Y: 2.5, Z: 0.5}}
	if !d3.Box(got).Equals(d3.Box(want), 1e-12) {
		t.Errorf("got %v, want %v", got, want)
	}
}
