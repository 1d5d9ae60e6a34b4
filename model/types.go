// Package model provides domain types shared across packages.
//
// Information Hiding:
// - Geometry helpers kept value-typed so moves stay immutable
// - ToolPath ownership tracked through an explicit seal
// - Hash layout hidden behind Simulation.ComputeHash
package model

import (
	"fmt"
	"math"
)

// Vec3 is a point or direction in machine coordinates (millimetres).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// String returns a compact representation.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", v.X, v.Y, v.Z)
}

// Lerp interpolates between a and b. t is clamped to [0, 1].
func Lerp(a, b Vec3, t float64) Vec3 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return a.Add(b.Sub(a).Scale(t))
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// EmptyBox returns a box that contains nothing. Extending it with a point
// yields a degenerate box around that point.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend returns the smallest box containing b and p.
func (b Box) Extend(p Vec3) Box {
	return Box{
		Min: Vec3{math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)},
		Max: Vec3{math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)},
	}
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Grow expands the box by m on every side.
func (b Box) Grow(m float64) Box {
	if b.IsEmpty() {
		return b
	}
	d := Vec3{m, m, m}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Size returns the box dimensions. An empty box has zero size.
func (b Box) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// MoveKind distinguishes rapid positioning from cutting feed moves.
type MoveKind int

const (
	// MoveRapid is a positioning move at the machine's rapid rate.
	MoveRapid MoveKind = iota
	// MoveCut is a feed move that removes material.
	MoveCut
)

// String returns the G-code style name of the move kind.
func (k MoveKind) String() string {
	if k == MoveRapid {
		return "rapid"
	}
	return "cut"
}

// Move is one straight tool motion segment. Moves are values and are never
// modified once emitted.
type Move struct {
	Kind      MoveKind `json:"kind"`
	Start     Vec3     `json:"start"`
	End       Vec3     `json:"end"`
	Feed      float64  `json:"feed"`       // units per minute
	Tool      int      `json:"tool"`       // active tool id
	StartTime float64  `json:"start_time"` // seconds since program start
	Duration  float64  `json:"duration"`   // seconds
}

// EndTime returns the cumulative time at which the move finishes.
func (m Move) EndTime() float64 {
	return m.StartTime + m.Duration
}

// Length returns the distance travelled by the move.
func (m Move) Length() float64 {
	return m.End.Sub(m.Start).Length()
}

// PointAt returns the tool position at absolute time t.
func (m Move) PointAt(t float64) Vec3 {
	if m.Duration <= 0 {
		if t < m.StartTime {
			return m.Start
		}
		return m.End
	}
	return Lerp(m.Start, m.End, (t-m.StartTime)/m.Duration)
}

// Bounds returns the box spanned by the move's endpoints.
func (m Move) Bounds() Box {
	return EmptyBox().Extend(m.Start).Extend(m.End)
}
