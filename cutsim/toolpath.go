package cutsim

import (
	"fmt"
	"os"
	"time"

	"github.com/richinex/cutsim/interp/gcode"
	"github.com/richinex/cutsim/interp/tpl"
	"github.com/richinex/cutsim/machine"
	"github.com/richinex/cutsim/model"
)

// BuildReport describes the outcome of the last ComputeToolPath call.
type BuildReport struct {
	Files       []string // requested, in order
	Run         []string // interpreted to completion or interruption
	Skipped     []string // missing on disk
	Err         error    // first interpretation error, if any
	Interrupted bool
	Moves       int
	Duration    float64 // programmed machining time in seconds
	Elapsed     time.Duration
}

// Project is an ordered list of program files with the tools they use.
type Project interface {
	FilePaths() []string
	ToolTable() *model.ToolTable
}

// ComputeToolPath interprets files in order and returns the sealed tool
// path. Missing files are skipped. An interpretation error stops the build:
// the failing file contributes no moves, so the result is the path of the
// files before it. Cancellation returns the partial path. No error is returned: the outcome is in LastBuild.
func (c *CutSim) ComputeToolPath(tools *model.ToolTable, files []string) *model.ToolPath {
	c.machine.Reset()
	c.task.Begin()

	c.path = model.NewToolPath(tools)
	ctrl := machine.NewController(c, tools, machine.WithRapidFeed(c.cfg.RapidFeed))
	report := BuildReport{Files: append([]string(nil), files...)}

	for i, file := range files {
		if c.task.ShouldQuit() {
			report.Interrupted = true
			break
		}
		if _, err := os.Stat(file); err != nil {
			c.logger.Debug("skipping missing program file", "file", file, "error", err)
			report.Skipped = append(report.Skipped, file)
			continue
		}

		c.task.Update(float64(i)/float64(len(files)), "Running "+file)
		report.Run = append(report.Run, file)
		mark := c.path.Len()
		if err := c.runFile(ctrl, file); err != nil {
			c.logger.Error("tool path build failed", "file", file, "error", err, "discarded", c.path.Len()-mark)
			c.path.Truncate(mark)
			report.Err = err
			break
		}
	}
	if c.task.ShouldQuit() {
		report.Interrupted = true
	}

	report.Elapsed = c.task.End()

	path := c.path
	c.path = nil
	path.Seal()

	report.Moves = path.Len()
	report.Duration = path.Duration()
	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	c.logger.Info("tool path built",
		"files", len(report.Run),
		"skipped", len(report.Skipped),
		"moves", report.Moves,
		"duration_s", report.Duration,
		"interrupted", report.Interrupted,
		"elapsed", report.Elapsed)
	return path
}

// ComputeToolPathForProject builds the tool path of a project.
func (c *CutSim) ComputeToolPathForProject(p Project) *model.ToolPath {
	return c.ComputeToolPath(p.ToolTable(), p.FilePaths())
}

// LastBuild returns the report of the most recent build.
func (c *CutSim) LastBuild() BuildReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *CutSim) runFile(ctrl *machine.Controller, file string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreting %s: %v", file, r)
		}
	}()

	switch c.LanguageFor(file) {
	case LanguageTPL:
		in := tpl.New(ctrl, tpl.WithOutput(c.output))
		detach := c.task.Attach(in)
		defer detach()
		return in.Read(file)
	default:
		return gcode.New(ctrl, c.task).Read(file)
	}
}
