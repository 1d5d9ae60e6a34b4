package machine

import (
	"errors"
	"fmt"

	"github.com/richinex/cutsim/model"
)

// DefaultRapidFeed is the rapid traverse rate in mm/min.
const DefaultRapidFeed = 10000.0

// ErrNoFeed is returned when a cutting move is requested before a feed rate
// has been set.
var ErrNoFeed = errors.New("feed rate not set")

// Units is the length unit interpreters address the machine in.
type Units int

const (
	Millimetres Units = iota
	Inches
)

// Scale returns the factor converting u to millimetres.
func (u Units) Scale() float64 {
	if u == Inches {
		return 25.4
	}
	return 1
}

// String returns the unit name.
func (u Units) String() string {
	if u == Inches {
		return "inch"
	}
	return "mm"
}

// Axis indexes X, Y and Z in Axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes holds the axis words of one motion command. Unset axes keep their
// current position.
type Axes struct {
	values [3]float64
	set    [3]bool
}

// Set records a value for axis.
func (a *Axes) Set(axis Axis, v float64) {
	a.values[axis] = v
	a.set[axis] = true
}

// Get returns the value of axis and whether it was set.
func (a Axes) Get(axis Axis) (float64, bool) {
	return a.values[axis], a.set[axis]
}

// Empty reports whether no axis is set.
func (a Axes) Empty() bool {
	return !a.set[0] && !a.set[1] && !a.set[2]
}

// Controller converts positioning commands into timed moves and forwards
// them to a Sink. One controller is shared by every file of a build so the
// tool position carries over between programs.
type Controller struct {
	sink      Sink
	tools     *model.ToolTable
	rapidFeed float64

	position    model.Vec3
	feed        float64 // mm/min
	tool        int
	time        float64
	units       Units
	incremental bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRapidFeed sets the rapid traverse rate in mm/min.
func WithRapidFeed(feed float64) ControllerOption {
	return func(c *Controller) {
		if feed > 0 {
			c.rapidFeed = feed
		}
	}
}

// NewController creates a controller at the origin with tool 0 selected.
func NewController(sink Sink, tools *model.ToolTable, opts ...ControllerOption) *Controller {
	if tools == nil {
		tools = model.NewToolTable()
	}
	c := &Controller{
		sink:      sink,
		tools:     tools,
		rapidFeed: DefaultRapidFeed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tools returns the tool table.
func (c *Controller) Tools() *model.ToolTable { return c.tools }

// Position returns the current position in millimetres.
func (c *Controller) Position() model.Vec3 { return c.position }

// Feed returns the current feed rate in mm/min.
func (c *Controller) Feed() float64 { return c.feed }

// Tool returns the active tool id.
func (c *Controller) Tool() int { return c.tool }

// Time returns the accumulated program time in seconds.
func (c *Controller) Time() float64 { return c.time }

// Units returns the active units.
func (c *Controller) Units() Units { return c.units }

// Incremental reports whether axis words are relative.
func (c *Controller) Incremental() bool { return c.incremental }

// SetUnits changes the unit for subsequent axis and feed words.
func (c *Controller) SetUnits(u Units) { c.units = u }

// SetIncremental switches between absolute and relative addressing.
func (c *Controller) SetIncremental(inc bool) { c.incremental = inc }

// SetFeed sets the feed rate, given in the active units per minute.
func (c *Controller) SetFeed(feed float64) error {
	if feed <= 0 {
		return fmt.Errorf("feed rate must be positive, got %g", feed)
	}
	c.feed = feed * c.units.Scale()
	return nil
}

// SetTool selects the active tool.
func (c *Controller) SetTool(id int) error {
	if id < 0 {
		return fmt.Errorf("invalid tool number %d", id)
	}
	c.tool = id
	return nil
}

// Target resolves axis words into an absolute position in millimetres.
func (c *Controller) Target(a Axes) model.Vec3 {
	p := [3]float64{c.position.X, c.position.Y, c.position.Z}
	scale := c.units.Scale()
	for i := 0; i < 3; i++ {
		v, ok := a.Get(Axis(i))
		if !ok {
			continue
		}
		v *= scale
		if c.incremental {
			p[i] += v
		} else {
			p[i] = v
		}
	}
	return model.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// Rapid moves to target at the rapid traverse rate.
func (c *Controller) Rapid(target model.Vec3) {
	c.emit(model.MoveRapid, target, c.rapidFeed)
}

// Cut moves to target at the current feed rate.
func (c *Controller) Cut(target model.Vec3) error {
	if c.feed <= 0 {
		return ErrNoFeed
	}
	c.emit(model.MoveCut, target, c.feed)
	return nil
}

// Dwell pauses for seconds without moving.
func (c *Controller) Dwell(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("dwell must not be negative, got %g", seconds)
	}
	c.time += seconds
	return nil
}

func (c *Controller) emit(kind model.MoveKind, target model.Vec3, feed float64) {
	length := target.Sub(c.position).Length()
	if length == 0 {
		return
	}
	m := model.Move{
		Kind:      kind,
		Start:     c.position,
		End:       target,
		Feed:      feed,
		Tool:      c.tool,
		StartTime: c.time,
		Duration:  length / feed * 60,
	}
	c.position = target
	c.time = m.EndTime()
	c.sink.Move(m)
}
