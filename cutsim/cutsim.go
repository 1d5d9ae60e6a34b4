// Package cutsim orchestrates the simulation pipeline: motion programs are
// interpreted into a tool path, and tool paths are rendered into surfaces.
//
// Information Hiding:
// - Interpreter selection by file suffix hidden in the dispatcher
// - In-progress tool path never escapes before it is sealed
// - Renderer threading hidden behind the configured thread count
package cutsim

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/richinex/cutsim/config"
	"github.com/richinex/cutsim/internal/dsa"
	"github.com/richinex/cutsim/machine"
	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/render"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// Renderer computes the surface of a cut workpiece.
type Renderer interface {
	Render(t *task.Task, cwp *render.CutWorkpiece, threads int, resolution float64) (surface.Surface, error)
}

// Language identifies which interpreter runs a program file.
type Language int

const (
	LanguageGCode Language = iota
	LanguageTPL
)

func (l Language) String() string {
	if l == LanguageTPL {
		return "tpl"
	}
	return "gcode"
}

// CutSim owns the machine state and the interpreters for one simulation
// session. ComputeToolPath and surface computation run on the caller's
// goroutine; Interrupt may be called from any goroutine.
type CutSim struct {
	cfg      config.SimulationConfig
	logger   *slog.Logger
	task     *task.Task
	renderer Renderer
	output   io.Writer
	dispatch *dsa.SuffixMatcher[Language]

	machine machine.Machine
	path    *model.ToolPath

	mu   sync.Mutex
	last BuildReport
}

// Option configures a CutSim.
type Option func(*CutSim)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CutSim) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTask replaces the session task.
func WithTask(t *task.Task) Option {
	return func(c *CutSim) {
		if t != nil {
			c.task = t
		}
	}
}

// WithRenderer replaces the heightfield renderer.
func WithRenderer(r Renderer) Option {
	return func(c *CutSim) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithScriptOutput sets where TPL print() output goes. Defaults to stdout.
func WithScriptOutput(w io.Writer) Option {
	return func(c *CutSim) {
		if w != nil {
			c.output = w
		}
	}
}

// WithSuffix routes files ending in suffix to lang.
func WithSuffix(suffix string, lang Language) Option {
	return func(c *CutSim) {
		c.dispatch.Add(suffix, lang)
	}
}

// New creates a CutSim. Zero fields in cfg take their defaults.
func New(cfg config.SimulationConfig, opts ...Option) *CutSim {
	def := config.DefaultSimulation()
	if cfg.Threads <= 0 {
		cfg.Threads = def.Threads
	}
	if cfg.RapidFeed <= 0 {
		cfg.RapidFeed = def.RapidFeed
	}
	if cfg.ResolutionMode == "" {
		cfg.ResolutionMode = def.ResolutionMode
	}
	if cfg.ReduceFactor <= 0 {
		cfg.ReduceFactor = def.ReduceFactor
	}

	c := &CutSim{
		cfg:      cfg,
		logger:   slog.Default(),
		output:   os.Stdout,
		dispatch: dsa.NewSuffixMatcher[Language](),
	}
	c.dispatch.Add(".tpl", LanguageTPL)
	for _, s := range []string{".nc", ".ngc", ".gcode", ".tap"} {
		c.dispatch.Add(s, LanguageGCode)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.task == nil {
		c.task = task.New(task.WithLogger(c.logger))
	}
	if c.renderer == nil {
		c.renderer = render.NewRenderer(
			render.WithLogger(c.logger),
			render.WithSurfaceOptions(surface.WithReducer(surface.ClusterReducer{Factor: cfg.ReduceFactor})),
		)
	}
	return c
}

// Config returns the effective simulation settings.
func (c *CutSim) Config() config.SimulationConfig {
	return c.cfg
}

// Task returns the session task.
func (c *CutSim) Task() *task.Task {
	return c.task
}

// Machine returns the machine state after the last build.
func (c *CutSim) Machine() machine.State {
	return c.machine.State()
}

// Interrupt requests cancellation of the running build or computation and
// terminates any running script. Safe from any goroutine.
func (c *CutSim) Interrupt() {
	c.logger.Info("interrupt requested")
	c.task.Interrupt()
}

// Move is the sink every interpreter emits through.
func (c *CutSim) Move(m model.Move) {
	c.machine.Move(m)
	if c.path != nil {
		c.path.Add(m)
	}
}

// LanguageFor returns the interpreter used for path.
func (c *CutSim) LanguageFor(path string) Language {
	lang, ok := c.dispatch.Match(path)
	if !ok {
		return LanguageGCode
	}
	return lang
}
