// Package surface provides triangulated meshes and their in-place
// reduction.
//
// Information Hiding:
// - Triangle storage hidden behind the Surface interface
// - Decimation strategy pluggable through Reducer
package surface

import (
	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/task"
)

// Triangle is three vertices in counter-clockwise order seen from outside.
type Triangle [3]model.Vec3

// Normal returns the unit normal, or the zero vector for degenerate
// triangles.
func (t Triangle) Normal() model.Vec3 {
	n := cross(t[1].Sub(t[0]), t[2].Sub(t[0]))
	l := n.Length()
	if l == 0 {
		return model.Vec3{}
	}
	return n.Scale(1 / l)
}

// Area returns the triangle area.
func (t Triangle) Area() float64 {
	return cross(t[1].Sub(t[0]), t[2].Sub(t[0])).Length() / 2
}

func cross(a, b model.Vec3) model.Vec3 {
	return model.Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Surface is a triangle mesh. Surfaces produced by rendering and by cache
// decoding behave identically.
type Surface interface {
	// Count returns the number of triangles.
	Count() int

	// Reduce simplifies the mesh in place. A cancelled reduction leaves the
	// mesh unchanged and returns task.ErrInterrupted.
	Reduce(t *task.Task) error

	// Triangles returns a copy of the triangles.
	Triangles() []Triangle

	// Bounds returns the box covering every vertex.
	Bounds() model.Box

	// Clone returns an independent copy.
	Clone() Surface
}

// Reducer simplifies a triangle list.
type Reducer interface {
	Reduce(c task.Canceller, tris []Triangle) ([]Triangle, error)
}

// ElementSurface is the in-memory Surface implementation.
type ElementSurface struct {
	triangles []Triangle
	reducer   Reducer
}

// Option configures an ElementSurface.
type Option func(*ElementSurface)

// WithReducer replaces the default ClusterReducer.
func WithReducer(r Reducer) Option {
	return func(s *ElementSurface) {
		if r != nil {
			s.reducer = r
		}
	}
}

// NewElementSurface takes ownership of tris.
func NewElementSurface(tris []Triangle, opts ...Option) *ElementSurface {
	s := &ElementSurface{
		triangles: tris,
		reducer:   ClusterReducer{Factor: DefaultClusterFactor},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ElementSurface) Count() int {
	return len(s.triangles)
}

func (s *ElementSurface) Reduce(t *task.Task) error {
	var c task.Canceller
	if t != nil {
		c = t
	}
	reduced, err := s.reducer.Reduce(c, s.triangles)
	if err != nil {
		return err
	}
	s.triangles = reduced
	return nil
}

func (s *ElementSurface) Triangles() []Triangle {
	out := make([]Triangle, len(s.triangles))
	copy(out, s.triangles)
	return out
}

func (s *ElementSurface) Bounds() model.Box {
	b := model.EmptyBox()
	for _, tri := range s.triangles {
		b = b.Extend(tri[0]).Extend(tri[1]).Extend(tri[2])
	}
	return b
}

func (s *ElementSurface) Clone() Surface {
	return &ElementSurface{triangles: s.Triangles(), reducer: s.reducer}
}

// Area returns the total surface area.
func (s *ElementSurface) Area() float64 {
	var a float64
	for _, tri := range s.triangles {
		a += tri.Area()
	}
	return a
}
