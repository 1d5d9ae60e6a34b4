package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// MaxSamples bounds the heightfield size. Finer resolutions are rejected
// rather than exhausting memory.
const MaxSamples = 1 << 24

var (
	ErrEmptyWorkpiece = errors.New("render: workpiece is empty")
	ErrBadResolution  = errors.New("render: resolution must be positive")
	ErrTooFine        = errors.New("render: resolution too fine for workpiece")
)

// Renderer samples a cut workpiece on a regular grid and triangulates the
// result into a closed mesh.
type Renderer struct {
	logger  *slog.Logger
	surface []surface.Option
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSurfaceOptions configures the surfaces the renderer produces.
func WithSurfaceOptions(opts ...surface.Option) Option {
	return func(r *Renderer) {
		r.surface = append(r.surface, opts...)
	}
}

// NewRenderer creates a renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type heightfield struct {
	nx, ny int
	x0, y0 float64
	dx, dy float64
	z      []float64
}

func (h *heightfield) at(i, j int) float64 { return h.z[j*h.nx+i] }

func (h *heightfield) point(i, j int, z float64) model.Vec3 {
	return model.Vec3{X: h.x0 + float64(i)*h.dx, Y: h.y0 + float64(j)*h.dy, Z: z}
}

// Render computes the surface of cwp at the given resolution using up to
// threads workers. threads <= 0 uses one worker per CPU. It returns
// task.ErrInterrupted when t is cancelled.
func (r *Renderer) Render(t *task.Task, cwp *CutWorkpiece, threads int, resolution float64) (surface.Surface, error) {
	b := cwp.Workpiece.Bounds
	if b.IsEmpty() || !cwp.Workpiece.IsValid() {
		return nil, ErrEmptyWorkpiece
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: %v", ErrBadResolution, resolution)
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	size := b.Size()
	nx := int(math.Ceil(size.X/resolution)) + 1
	ny := int(math.Ceil(size.Y/resolution)) + 1
	if nx < 2 {
		nx = 2
	}
	if ny < 2 {
		ny = 2
	}
	if float64(nx)*float64(ny) > MaxSamples {
		return nil, fmt.Errorf("%w: %dx%d samples", ErrTooFine, nx, ny)
	}

	hf := &heightfield{
		nx: nx, ny: ny,
		x0: b.Min.X, y0: b.Min.Y,
		dx: size.X / float64(nx-1),
		dy: size.Y / float64(ny-1),
		z:  make([]float64, nx*ny),
	}

	r.logger.Debug("rendering heightfield", "nx", nx, "ny", ny, "moves", cwp.Sweep.Len(), "threads", threads)

	var done atomic.Int64
	step := int64(ny/100 + 1)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(threads)
	for j := 0; j < ny; j++ {
		if ctx.Err() != nil || t.ShouldQuit() {
			break
		}
		j := j
		g.Go(func() error {
			if t.ShouldQuit() {
				return task.ErrInterrupted
			}
			y := hf.y0 + float64(j)*hf.dy
			moves := cwp.Sweep.rowMoves(y)
			row := hf.z[j*nx : (j+1)*nx]
			for i := range row {
				row[i] = cwp.heightAt(hf.x0+float64(i)*hf.dx, y, moves)
			}
			if n := done.Add(1); n%step == 0 {
				t.Update(float64(n)/float64(ny), "Rendering")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if t.ShouldQuit() {
		return nil, task.ErrInterrupted
	}

	tris := triangulate(hf, b.Min.Z)
	return surface.NewElementSurface(tris, r.surface...), nil
}

// triangulate closes the heightfield into a solid: the cut top, a flat
// bottom at floor and four walls. All faces wind counter-clockwise seen
// from outside.
func triangulate(h *heightfield, floor float64) []surface.Triangle {
	tris := make([]surface.Triangle, 0, 4*(h.nx-1)*(h.ny-1)+4*(h.nx+h.ny))
	add := func(a, b, c model.Vec3) {
		t := surface.Triangle{a, b, c}
		if t.Area() > 0 {
			tris = append(tris, t)
		}
	}
	quad := func(a, b, c, d model.Vec3) {
		add(a, b, c)
		add(a, c, d)
	}

	for j := 0; j < h.ny-1; j++ {
		for i := 0; i < h.nx-1; i++ {
			p00 := h.point(i, j, h.at(i, j))
			p10 := h.point(i+1, j, h.at(i+1, j))
			p11 := h.point(i+1, j+1, h.at(i+1, j+1))
			p01 := h.point(i, j+1, h.at(i, j+1))
			quad(p00, p10, p11, p01)

			q00 := h.point(i, j, floor)
			q10 := h.point(i+1, j, floor)
			q11 := h.point(i+1, j+1, floor)
			q01 := h.point(i, j+1, floor)
			quad(q00, q01, q11, q10)
		}
	}

	// Front (y min) and back (y max) walls.
	last := h.ny - 1
	for i := 0; i < h.nx-1; i++ {
		a, b := h.point(i, 0, floor), h.point(i+1, 0, floor)
		quad(a, b, h.point(i+1, 0, h.at(i+1, 0)), h.point(i, 0, h.at(i, 0)))

		a, b = h.point(i+1, last, floor), h.point(i, last, floor)
		quad(a, b, h.point(i, last, h.at(i, last)), h.point(i+1, last, h.at(i+1, last)))
	}
	// Left (x min) and right (x max) walls.
	last = h.nx - 1
	for j := 0; j < h.ny-1; j++ {
		a, b := h.point(0, j+1, floor), h.point(0, j, floor)
		quad(a, b, h.point(0, j, h.at(0, j)), h.point(0, j+1, h.at(0, j+1)))

		a, b = h.point(last, j, floor), h.point(last, j+1, floor)
		quad(a, b, h.point(last, j+1, h.at(last, j+1)), h.point(last, j, h.at(last, j)))
	}
	return tris
}
