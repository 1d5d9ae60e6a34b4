package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ToolShape is the cutting profile of a tool.
type ToolShape string

const (
	ShapeCylindrical ToolShape = "cylindrical"
	ShapeBallnose    ToolShape = "ballnose"
)

// Default geometry for tools that a program selects without a table entry.
const (
	DefaultToolDiameter = 6.35
	DefaultToolLength   = 50.0
)

// Tool describes the geometry of a single tool.
type Tool struct {
	ID       int       `json:"-"`
	Shape    ToolShape `json:"shape"`
	Diameter float64   `json:"diameter"`
	Length   float64   `json:"length"`
}

// Radius returns half the tool diameter.
func (t Tool) Radius() float64 {
	return t.Diameter / 2
}

// Validate checks the tool geometry.
func (t Tool) Validate() error {
	if t.Diameter <= 0 {
		return fmt.Errorf("tool %d: diameter must be positive, got %g", t.ID, t.Diameter)
	}
	switch t.Shape {
	case ShapeCylindrical, ShapeBallnose:
	default:
		return fmt.Errorf("tool %d: unknown shape %q", t.ID, t.Shape)
	}
	return nil
}

// DefaultTool returns the tool used when id has no table entry.
func DefaultTool(id int) Tool {
	return Tool{
		ID:       id,
		Shape:    ShapeCylindrical,
		Diameter: DefaultToolDiameter,
		Length:   DefaultToolLength,
	}
}

// ToolTable maps tool ids to geometry. It is populated once when a project
// is loaded and read-only afterwards.
type ToolTable struct {
	tools map[int]Tool
}

// NewToolTable creates an empty table.
func NewToolTable() *ToolTable {
	return &ToolTable{tools: make(map[int]Tool)}
}

// Add inserts or replaces a tool.
func (t *ToolTable) Add(tool Tool) {
	t.tools[tool.ID] = tool
}

// Has reports whether id has an explicit entry.
func (t *ToolTable) Has(id int) bool {
	if t == nil {
		return false
	}
	_, ok := t.tools[id]
	return ok
}

// Get returns the tool for id, or DefaultTool(id) if it is not present.
func (t *ToolTable) Get(id int) Tool {
	if t != nil {
		if tool, ok := t.tools[id]; ok {
			return tool
		}
	}
	return DefaultTool(id)
}

// IDs returns the tool ids in ascending order.
func (t *ToolTable) IDs() []int {
	if t == nil {
		return nil
	}
	ids := make([]int, 0, len(t.tools))
	for id := range t.tools {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of explicit entries.
func (t *ToolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tools)
}

// MarshalJSON encodes the table as an object keyed by tool id.
func (t *ToolTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]Tool, t.Len())
	for _, id := range t.IDs() {
		out[strconv.Itoa(id)] = t.tools[id]
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by tool id and validates each tool.
func (t *ToolTable) UnmarshalJSON(data []byte) error {
	var raw map[string]Tool
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing tool table: %w", err)
	}
	t.tools = make(map[int]Tool, len(raw))
	for key, tool := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid tool id %q: %w", key, err)
		}
		tool.ID = id
		if tool.Shape == "" {
			tool.Shape = ShapeCylindrical
		}
		if err := tool.Validate(); err != nil {
			return err
		}
		t.tools[id] = tool
	}
	return nil
}
