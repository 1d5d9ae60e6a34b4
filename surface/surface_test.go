package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/task"
)

// grid returns a flat n x n grid of unit cells at z = 0.
func grid(n int) []Triangle {
	var tris []Triangle
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x0, y0 := float64(i), float64(j)
			p00 := model.Vec3{X: x0, Y: y0}
			p10 := model.Vec3{X: x0 + 1, Y: y0}
			p11 := model.Vec3{X: x0 + 1, Y: y0 + 1}
			p01 := model.Vec3{X: x0, Y: y0 + 1}
			tris = append(tris, Triangle{p00, p10, p11}, Triangle{p00, p11, p01})
		}
	}
	return tris
}

func TestTriangleNormalAndArea(t *testing.T) {
	tri := Triangle{{}, {X: 2}, {Y: 2}}
	assert.Equal(t, model.Vec3{Z: 1}, tri.Normal())
	assert.InDelta(t, 2.0, tri.Area(), 1e-12)

	degenerate := Triangle{{}, {X: 1}, {X: 2}}
	assert.Equal(t, model.Vec3{}, degenerate.Normal())
}

func TestReduceShrinksFlatGrid(t *testing.T) {
	s := NewElementSurface(grid(32))
	start := s.Count()
	require.Equal(t, 2048, start)

	require.NoError(t, s.Reduce(task.New()))
	assert.Less(t, s.Count(), start)
	assert.Greater(t, s.Count(), 0)

	for _, tri := range s.Triangles() {
		assert.InDelta(t, 0.0, tri[0].Z, 1e-12, "flat input stays flat")
		assert.Greater(t, tri.Area(), 0.0)
	}
}

func TestReduceEmptySurface(t *testing.T) {
	s := NewElementSurface(nil)
	require.NoError(t, s.Reduce(nil))
	assert.Equal(t, 0, s.Count())
}

func TestCancelledReduceLeavesMeshUntouched(t *testing.T) {
	tk := task.New()
	tk.Begin()
	defer tk.End()
	tk.Interrupt()

	s := NewElementSurface(grid(8))
	err := s.Reduce(tk)
	assert.ErrorIs(t, err, task.ErrInterrupted)
	assert.Equal(t, 128, s.Count())
}

type halfReducer struct{}

func (halfReducer) Reduce(_ task.Canceller, tris []Triangle) ([]Triangle, error) {
	return tris[:len(tris)/2], nil
}

func TestCustomReducer(t *testing.T) {
	s := NewElementSurface(grid(2), WithReducer(halfReducer{}))
	require.NoError(t, s.Reduce(nil))
	assert.Equal(t, 4, s.Count())
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewElementSurface(grid(4))
	c := s.Clone()
	require.NoError(t, s.Reduce(nil))

	assert.Equal(t, 32, c.Count())
	assert.NotEqual(t, s.Count(), c.Count())
}

func TestBoundsAndArea(t *testing.T) {
	s := NewElementSurface(grid(3))
	b := s.Bounds()
	assert.Equal(t, model.Vec3{}, b.Min)
	assert.Equal(t, model.Vec3{X: 3, Y: 3}, b.Max)
	assert.InDelta(t, 9.0, s.Area(), 1e-9)
}
