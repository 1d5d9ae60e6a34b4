// Package render turns a swept tool path and a stock workpiece into a
// triangulated surface.
//
// Information Hiding:
// - Heightfield sampling and tool profiles hidden behind Renderer
// - Move truncation at the time cutoff hidden in ToolSweep
package render

import (
	"math"

	"github.com/richinex/cutsim/model"
)

// ToolSweep is the volume swept by the tool along a path up to a time
// cutoff. The move in progress at the cutoff is truncated.
type ToolSweep struct {
	moves []sweptMove
	tools *model.ToolTable
}

type sweptMove struct {
	move   model.Move
	tool   model.Tool
	bounds model.Box // endpoints grown by the tool radius in XY
}

// NewToolSweep builds the sweep of path up to time. time <= 0 sweeps the
// whole path.
func NewToolSweep(path *model.ToolPath, time float64) *ToolSweep {
	s := &ToolSweep{tools: path.Tools()}
	if time <= 0 {
		time = math.Inf(1)
	}
	for i := 0; i < path.Len(); i++ {
		m := path.At(i)
		if m.StartTime >= time {
			break
		}
		if m.EndTime() > time {
			m.End = m.PointAt(time)
			m.Duration = time - m.StartTime
		}
		tool := s.tools.Get(m.Tool)
		r := tool.Radius()
		b := m.Bounds()
		b.Min.X -= r
		b.Min.Y -= r
		b.Max.X += r
		b.Max.Y += r
		s.moves = append(s.moves, sweptMove{move: m, tool: tool, bounds: b})
	}
	return s
}

// Len returns the number of swept moves.
func (s *ToolSweep) Len() int {
	return len(s.moves)
}

// Bounds returns the box covering the swept volume in XY and the tool tip
// range in Z.
func (s *ToolSweep) Bounds() model.Box {
	b := model.EmptyBox()
	for _, m := range s.moves {
		b = b.Union(m.bounds)
	}
	return b
}

// rowMoves returns the moves whose footprint crosses the line y.
func (s *ToolSweep) rowMoves(y float64) []*sweptMove {
	var out []*sweptMove
	for i := range s.moves {
		m := &s.moves[i]
		if y >= m.bounds.Min.Y && y <= m.bounds.Max.Y {
			out = append(out, m)
		}
	}
	return out
}

// depth returns the lowest point the tool tip surface reaches above
// (x, y), or +Inf if the footprint never covers it.
func (m *sweptMove) depth(x, y float64) float64 {
	if x < m.bounds.Min.X || x > m.bounds.Max.X {
		return math.Inf(1)
	}
	r := m.tool.Radius()
	p0, p1 := m.move.Start, m.move.End
	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	qx, qy := x-p0.X, y-p0.Y

	zAt := func(t float64) float64 { return p0.Z + (p1.Z-p0.Z)*t }
	dist2At := func(t float64) float64 {
		ex, ey := qx-dx*t, qy-dy*t
		return ex*ex + ey*ey
	}

	// Parameter interval where the XY distance is within r.
	a := dx*dx + dy*dy
	var t0, t1 float64
	if a < 1e-18 {
		if qx*qx+qy*qy > r*r {
			return math.Inf(1)
		}
		t0, t1 = 0, 1
	} else {
		b := -2 * (qx*dx + qy*dy)
		c := qx*qx + qy*qy - r*r
		disc := b*b - 4*a*c
		if disc < 0 {
			return math.Inf(1)
		}
		sq := math.Sqrt(disc)
		t0 = math.Max(0, (-b-sq)/(2*a))
		t1 = math.Min(1, (-b+sq)/(2*a))
		if t0 > t1 {
			return math.Inf(1)
		}
	}

	if m.tool.Shape != model.ShapeBallnose {
		return math.Min(zAt(t0), zAt(t1))
	}

	// Ball: sample the interval ends and the closest approach.
	best := math.Inf(1)
	candidates := []float64{t0, t1}
	if a >= 1e-18 {
		tc := (qx*dx + qy*dy) / a
		if tc > t0 && tc < t1 {
			candidates = append(candidates, tc)
		}
	}
	for _, t := range candidates {
		d2 := dist2At(t)
		if d2 > r*r {
			d2 = r * r
		}
		z := zAt(t) + r - math.Sqrt(r*r-d2)
		best = math.Min(best, z)
	}
	return best
}

// CutWorkpiece is the stock minus the tool sweep.
type CutWorkpiece struct {
	Sweep     *ToolSweep
	Workpiece model.Workpiece
}

// NewCutWorkpiece pairs a sweep with the stock it cuts.
func NewCutWorkpiece(sweep *ToolSweep, wp model.Workpiece) *CutWorkpiece {
	return &CutWorkpiece{Sweep: sweep, Workpiece: wp}
}

// heightAt returns the remaining stock height at (x, y) given the moves
// crossing that row.
func (c *CutWorkpiece) heightAt(x, y float64, moves []*sweptMove) float64 {
	b := c.Workpiece.Bounds
	h := b.Max.Z
	for _, m := range moves {
		if d := m.depth(x, y); d < h {
			h = d
		}
	}
	if h < b.Min.Z {
		h = b.Min.Z
	}
	return h
}
