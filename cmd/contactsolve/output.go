package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/soypat/contact/narrowphase"
	"github.com/soypat/contact/scene"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

type contactRecord struct {
	Simplex     int       `yaml:"simplex"`
	Collider    string    `yaml:"collider"`
	Weights     []float64 `yaml:"weights,flow"`
	Point       scene.Vec `yaml:"point,flow"`
	Radius      float64   `yaml:"radius"`
	Surface     scene.Vec `yaml:"surface,flow"`
	Normal      scene.Vec `yaml:"normal,flow"`
	Distance    float64   `yaml:"distance"`
	Iterations  int       `yaml:"iterations"`
	Evaluations int       `yaml:"evaluations"`
}

func vec(v r3.Vec) scene.Vec { return scene.Vec{v.X, v.Y, v.Z} }

func colliderName(names []string, i int) string {
	if names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("#%d", i)
}

func writeYAML(w io.Writer, contacts []narrowphase.Contact, simplices [][]int, names []string) error {
	records := make([]contactRecord, len(contacts))
	for i, c := range contacts {
		n := len(simplices[c.Simplex])
		records[i] = contactRecord{
			Simplex:     c.Simplex,
			Collider:    colliderName(names, c.Collider),
			Weights:     append([]float64(nil), c.Weights[:n]...),
			Point:       vec(c.Point),
			Radius:      c.Radius,
			Surface:     vec(c.Surface),
			Normal:      vec(c.Normal),
			Distance:    c.Distance,
			Iterations:  c.Iterations,
			Evaluations: c.Evaluations,
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]contactRecord{"contacts": records}); err != nil {
		return err
	}
	return enc.Close()
}

func writeText(w io.Writer, contacts []narrowphase.Contact, names []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "simplex\tcollider\tdistance\tsurface\tnormal\titer\t")
	for _, c := range contacts {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%s\t%s\t%d\t\n",
			c.Simplex, colliderName(names, c.Collider), c.Distance,
			fmtVec(c.Surface), fmtVec(c.Normal), c.Iterations)
	}
	return tw.Flush()
}

func fmtVec(v r3.Vec) string {
	return fmt.Sprintf("(%.4f,%.4f,%.4f)", v.X, v.Y, v.Z)
}
