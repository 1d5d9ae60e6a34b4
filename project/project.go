// Package project loads simulation description files: the ordered program
// files of a job, its tool table, stock and resolution.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/richinex/cutsim/model"
)

// DefaultMargin is the stock margin of an automatic workpiece when the file
// gives none.
const DefaultMargin = 2.0

// Project is a loaded description file.
type Project struct {
	Path       string // the description file; its cache record lives beside it
	Files      []string
	Tools      *model.ToolTable
	Workpiece  model.Workpiece
	Mode       model.ResolutionMode // empty defers to the caller's default
	Resolution float64              // used in manual mode
}

type fileWorkpiece struct {
	Min       *[3]float64 `json:"min"`
	Max       *[3]float64 `json:"max"`
	Automatic bool        `json:"automatic"`
	Margin    *float64    `json:"margin"`
}

type file struct {
	Files          []string         `json:"files"`
	Tools          *model.ToolTable `json:"tools"`
	Workpiece      *fileWorkpiece   `json:"workpiece"`
	Resolution     float64          `json:"resolution"`
	ResolutionMode string           `json:"resolution_mode"`
}

// Load reads the description file at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	p, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Path = path
	return p, nil
}

// Parse decodes a description. Relative program paths are resolved against
// dir.
func Parse(data []byte, dir string) (*Project, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}
	if len(f.Files) == 0 {
		return nil, errors.New("project lists no program files")
	}

	mode := model.ResolutionMode("")
	if f.ResolutionMode != "" {
		m, err := model.ParseResolutionMode(f.ResolutionMode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	if mode == model.ResolutionManual && !(f.Resolution > 0) {
		return nil, fmt.Errorf("manual resolution mode needs a positive resolution, got %g", f.Resolution)
	}
	if f.Resolution > 0 && mode == "" {
		mode = model.ResolutionManual
	}

	wp, err := f.Workpiece.workpiece()
	if err != nil {
		return nil, err
	}

	tools := f.Tools
	if tools == nil {
		tools = model.NewToolTable()
	}

	files := make([]string, len(f.Files))
	for i, name := range f.Files {
		if !filepath.IsAbs(name) && dir != "" {
			name = filepath.Join(dir, name)
		}
		files[i] = name
	}

	return &Project{
		Files:      files,
		Tools:      tools,
		Workpiece:  wp,
		Mode:       mode,
		Resolution: f.Resolution,
	}, nil
}

func (w *fileWorkpiece) workpiece() (model.Workpiece, error) {
	if w == nil {
		return model.AutomaticWorkpiece(DefaultMargin), nil
	}
	if w.Automatic || (w.Min == nil && w.Max == nil) {
		margin := DefaultMargin
		if w.Margin != nil {
			margin = *w.Margin
		}
		if margin < 0 {
			return model.Workpiece{}, fmt.Errorf("workpiece margin must not be negative, got %g", margin)
		}
		return model.AutomaticWorkpiece(margin), nil
	}
	if w.Min == nil || w.Max == nil {
		return model.Workpiece{}, errors.New("workpiece needs both min and max")
	}
	wp := model.NewWorkpiece(model.Box{
		Min: model.Vec3{X: w.Min[0], Y: w.Min[1], Z: w.Min[2]},
		Max: model.Vec3{X: w.Max[0], Y: w.Max[1], Z: w.Max[2]},
	})
	if !wp.IsValid() {
		return model.Workpiece{}, fmt.Errorf("workpiece has no volume: %v..%v", wp.Bounds.Min, wp.Bounds.Max)
	}
	return wp, nil
}

// FilePaths returns the program files in execution order.
func (p *Project) FilePaths() []string {
	return append([]string(nil), p.Files...)
}

// ToolTable returns the project's tools.
func (p *Project) ToolTable() *model.ToolTable {
	return p.Tools
}

// Simulation builds the snapshot of path at time for this project's stock.
// fallback is the resolution mode used when the file names none.
func (p *Project) Simulation(path *model.ToolPath, time float64, fallback model.ResolutionMode) model.Simulation {
	mode := p.Mode
	if mode == "" {
		mode = fallback
	}
	sim := model.NewSimulation(path, time, p.Workpiece, p.Resolution)
	sim.Resolution = model.ComputeResolution(mode, sim.Workpiece, p.Resolution)
	return sim
}
