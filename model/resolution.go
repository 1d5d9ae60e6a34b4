package model

import (
	"fmt"
	"math"
	"strings"
)

// ResolutionMode selects how the grid cell size is derived.
type ResolutionMode string

const (
	ResolutionLow    ResolutionMode = "low"
	ResolutionMedium ResolutionMode = "medium"
	ResolutionHigh   ResolutionMode = "high"
	ResolutionManual ResolutionMode = "manual"
)

// target cell counts over the workpiece top face per mode
var resolutionCells = map[ResolutionMode]float64{
	ResolutionLow:    40_000,
	ResolutionMedium: 160_000,
	ResolutionHigh:   640_000,
}

// ParseResolutionMode parses a mode name, case-insensitively.
func ParseResolutionMode(s string) (ResolutionMode, error) {
	switch m := ResolutionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ResolutionLow, ResolutionMedium, ResolutionHigh, ResolutionManual:
		return m, nil
	case "":
		return ResolutionMedium, nil
	default:
		return "", fmt.Errorf("unknown resolution mode: %q", s)
	}
}

// ComputeResolution returns the cell size for mode over wp. Manual mode
// returns manual unchanged.
func ComputeResolution(mode ResolutionMode, wp Workpiece, manual float64) float64 {
	cells, ok := resolutionCells[mode]
	if !ok {
		return manual
	}
	size := wp.Bounds.Size()
	area := size.X * size.Y
	if area <= 0 {
		return manual
	}
	return math.Sqrt(area / cells)
}
