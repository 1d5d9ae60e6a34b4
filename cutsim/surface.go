package cutsim

import (
	"errors"
	"fmt"
	"time"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/render"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// ReductionReport describes one ReduceSurface call.
type ReductionReport struct {
	Start   int
	End     int
	Elapsed time.Duration
	Percent float64 // share of triangles removed, 0 when Start is 0
}

// ComputeSurface renders sim on the session task.
func (c *CutSim) ComputeSurface(sim model.Simulation) (surface.Surface, error) {
	return c.ComputeSurfaceTask(c.task, sim)
}

// ComputeSurfaceTask renders sim under t. Concurrent callers must each pass
// their own task, typically a Fork of the session task.
func (c *CutSim) ComputeSurfaceTask(t *task.Task, sim model.Simulation) (surface.Surface, error) {
	if sim.Path == nil {
		return nil, errors.New("simulation has no tool path")
	}
	if err := sim.Validate(); err != nil {
		return nil, fmt.Errorf("computing surface: %w", err)
	}

	t.Begin()
	defer t.End()
	t.Update(task.Indeterminate, "Rendering")

	sweep := render.NewToolSweep(sim.Path, sim.EffectiveTime())
	cwp := render.NewCutWorkpiece(sweep, sim.Workpiece.Resolve(sim.Path))
	s, err := c.renderer.Render(t, cwp, c.cfg.Threads, sim.Resolution)
	if err != nil {
		return nil, fmt.Errorf("computing surface: %w", err)
	}
	return s, nil
}

// ReduceSurface simplifies s in place on the session task.
func (c *CutSim) ReduceSurface(s surface.Surface) (ReductionReport, error) {
	c.task.Begin()
	start := s.Count()
	err := s.Reduce(c.task)
	end := s.Count()
	elapsed := c.task.End()

	report := ReductionReport{Start: start, End: end, Elapsed: elapsed}
	if start > 0 {
		report.Percent = float64(start-end) / float64(start) * 100
	}
	c.logger.Info("surface reduced",
		"elapsed", elapsed,
		"triangles", end,
		"reduction_pct", fmt.Sprintf("%.1f", report.Percent))
	if err != nil && !errors.Is(err, task.ErrInterrupted) {
		return report, fmt.Errorf("reducing surface: %w", err)
	}
	return report, nil
}
