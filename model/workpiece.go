package model

// Workpiece is the initial stock: an axis-aligned box. An automatic workpiece
// takes its bounds from the tool path it is simulated against.
type Workpiece struct {
	Bounds    Box     `json:"bounds"`
	Automatic bool    `json:"automatic"`
	Margin    float64 `json:"margin"`
}

// NewWorkpiece creates a fixed box workpiece.
func NewWorkpiece(bounds Box) Workpiece {
	return Workpiece{Bounds: bounds}
}

// AutomaticWorkpiece creates a workpiece sized from the tool path.
func AutomaticWorkpiece(margin float64) Workpiece {
	return Workpiece{Automatic: true, Margin: margin}
}

// Resolve returns a fixed workpiece. For automatic workpieces the bounds are
// the cutting moves grown by the margin in X, Y and downward in Z, with the
// top at the highest cut or zero, whichever is higher.
func (w Workpiece) Resolve(path *ToolPath) Workpiece {
	if !w.Automatic {
		return w
	}
	cut := path.CutBounds()
	if cut.IsEmpty() {
		return Workpiece{Bounds: cut}
	}
	b := cut.Grow(w.Margin)
	b.Max.Z = cut.Max.Z
	if b.Max.Z < 0 {
		b.Max.Z = 0
	}
	return Workpiece{Bounds: b}
}

// IsValid reports whether the workpiece has a positive volume.
func (w Workpiece) IsValid() bool {
	s := w.Bounds.Size()
	return !w.Bounds.IsEmpty() && s.X > 0 && s.Y > 0 && s.Z > 0
}
