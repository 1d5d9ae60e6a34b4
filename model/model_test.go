package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPath(tools *ToolTable) *ToolPath {
	p := NewToolPath(tools)
	p.Add(Move{Kind: MoveRapid, Start: Vec3{0, 0, 5}, End: Vec3{0, 0, 1}, Feed: 600, Tool: 1, StartTime: 0, Duration: 0.4})
	p.Add(Move{Kind: MoveCut, Start: Vec3{0, 0, 1}, End: Vec3{10, 0, -1}, Feed: 300, Tool: 1, StartTime: 0.4, Duration: 1.6})
	return p
}

func testTools() *ToolTable {
	tools := NewToolTable()
	tools.Add(Tool{ID: 1, Shape: ShapeBallnose, Diameter: 4, Length: 30})
	tools.Add(Tool{ID: 2, Shape: ShapeCylindrical, Diameter: 8, Length: 40})
	return tools
}

var testStock = NewWorkpiece(Box{Min: Vec3{-5, -5, -5}, Max: Vec3{15, 5, 0}})

func TestComputeHashDeterministic(t *testing.T) {
	a := NewSimulation(testPath(testTools()), 0, testStock, 0.5)
	b := NewSimulation(testPath(testTools()), 0, testStock, 0.5)

	assert.Equal(t, a.ComputeHash(), b.ComputeHash())
	assert.Len(t, a.ComputeHash().String(), 16)
}

func TestComputeHashSensitivity(t *testing.T) {
	base := NewSimulation(testPath(testTools()), 0, testStock, 0.5).ComputeHash()

	movedEnd := testPath(testTools())
	movedEnd.moves[1].End.Y = 0.001

	otherFeed := testPath(testTools())
	otherFeed.moves[1].Feed = 301

	otherKind := testPath(testTools())
	otherKind.moves[0].Kind = MoveCut

	widerBall := testTools()
	widerBall.Add(Tool{ID: 1, Shape: ShapeBallnose, Diameter: 5, Length: 30})

	flatTool := testTools()
	flatTool.Add(Tool{ID: 1, Shape: ShapeCylindrical, Diameter: 4, Length: 30})

	bigger := testStock
	bigger.Bounds.Max.X = 16

	tests := []struct {
		name string
		sim  Simulation
	}{
		{"move endpoint", NewSimulation(movedEnd, 0, testStock, 0.5)},
		{"feed", NewSimulation(otherFeed, 0, testStock, 0.5)},
		{"move kind", NewSimulation(otherKind, 0, testStock, 0.5)},
		{"tool diameter", NewSimulation(testPath(widerBall), 0, testStock, 0.5)},
		{"tool shape", NewSimulation(testPath(flatTool), 0, testStock, 0.5)},
		{"workpiece", NewSimulation(testPath(testTools()), 0, bigger, 0.5)},
		{"resolution", NewSimulation(testPath(testTools()), 0, testStock, 0.25)},
		{"time", NewSimulation(testPath(testTools()), 1, testStock, 0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.sim.ComputeHash())
		})
	}
}

func TestComputeHashIgnoresUnusedTools(t *testing.T) {
	base := NewSimulation(testPath(testTools()), 0, testStock, 0.5).ComputeHash()

	tools := testTools()
	tools.Add(Tool{ID: 2, Shape: ShapeBallnose, Diameter: 12, Length: 60})
	tools.Add(Tool{ID: 7, Shape: ShapeCylindrical, Diameter: 1, Length: 10})

	assert.Equal(t, base, NewSimulation(testPath(tools), 0, testStock, 0.5).ComputeHash())
}

func TestNewSimulationNormalisesTime(t *testing.T) {
	whole := NewSimulation(testPath(nil), 0, testStock, 1)
	past := NewSimulation(testPath(nil), 99, testStock, 1)
	negative := NewSimulation(testPath(nil), -3, testStock, 1)
	partial := NewSimulation(testPath(nil), 1.2, testStock, 1)

	assert.InDelta(t, 2.0, whole.Time, 1e-12)
	assert.Equal(t, whole.ComputeHash(), past.ComputeHash())
	assert.Equal(t, whole.ComputeHash(), negative.ComputeHash())
	assert.InDelta(t, 1.2, partial.Time, 1e-12)
	assert.NotEqual(t, whole.ComputeHash(), partial.ComputeHash())
}

func TestNewSimulationSealsPath(t *testing.T) {
	p := testPath(nil)
	require.False(t, p.Sealed())

	sim := NewSimulation(p, 0, testStock, 1)

	assert.True(t, sim.Path.Sealed())
	assert.Panics(t, func() { p.Add(Move{}) })
}

func TestNewSimulationNilPath(t *testing.T) {
	sim := NewSimulation(nil, 0, testStock, 1)

	require.NotNil(t, sim.Path)
	assert.Equal(t, 0, sim.Path.Len())
	assert.Zero(t, sim.Time)
}

func TestAutomaticWorkpiece(t *testing.T) {
	wp := AutomaticWorkpiece(2).Resolve(testPath(nil))

	require.False(t, wp.Automatic)
	assert.Equal(t, Vec3{-2, -2, -3}, wp.Bounds.Min)
	// The top sits at the highest cut endpoint.
	assert.Equal(t, Vec3{12, 2, 1}, wp.Bounds.Max)
	assert.True(t, wp.IsValid())
}

func TestAutomaticWorkpieceWithoutCuts(t *testing.T) {
	p := NewToolPath(nil)
	p.Add(Move{Kind: MoveRapid, End: Vec3{1, 1, 1}, Duration: 1})

	wp := AutomaticWorkpiece(2).Resolve(p)

	assert.False(t, wp.IsValid())
}

func TestSimulationValidate(t *testing.T) {
	assert.NoError(t, NewSimulation(testPath(nil), 0, testStock, 1).Validate())
	assert.Error(t, NewSimulation(testPath(nil), 0, testStock, 0).Validate())
	assert.Error(t, NewSimulation(testPath(nil), 0, testStock, math.NaN()).Validate())
	assert.Error(t, NewSimulation(testPath(nil), 0, NewWorkpiece(EmptyBox()), 1).Validate())
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash(" 00FF00FF00FF00FF ")
	require.NoError(t, err)
	assert.Equal(t, Hash("00ff00ff00ff00ff"), h)

	_, err = ParseHash("abc")
	assert.Error(t, err)
	_, err = ParseHash("zzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestMovePointAt(t *testing.T) {
	m := Move{Start: Vec3{0, 0, 0}, End: Vec3{10, 0, 0}, StartTime: 1, Duration: 2}

	assert.Equal(t, Vec3{5, 0, 0}, m.PointAt(2))
	assert.InDelta(t, 3.0, m.EndTime(), 1e-12)
	assert.InDelta(t, 10.0, m.Length(), 1e-12)

	dwell := Move{Start: Vec3{1, 1, 1}, End: Vec3{1, 1, 1}, StartTime: 4}
	assert.Equal(t, Vec3{1, 1, 1}, dwell.PointAt(5))
}

func TestToolTableDefaults(t *testing.T) {
	tools := NewToolTable()

	assert.False(t, tools.Has(3))
	assert.Equal(t, DefaultTool(3), tools.Get(3))

	var nilTable *ToolTable
	assert.Equal(t, DefaultToolDiameter, nilTable.Get(1).Diameter)
	assert.Zero(t, nilTable.Len())
}

func TestToolTableJSON(t *testing.T) {
	var tools ToolTable
	err := json.Unmarshal([]byte(`{"1":{"shape":"ballnose","diameter":3,"length":20},"4":{"diameter":6}}`), &tools)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 4}, tools.IDs())
	assert.Equal(t, ShapeBallnose, tools.Get(1).Shape)
	assert.Equal(t, ShapeCylindrical, tools.Get(4).Shape)
	assert.Equal(t, 4, tools.Get(4).ID)

	assert.Error(t, json.Unmarshal([]byte(`{"x":{"diameter":3}}`), &tools))
	assert.Error(t, json.Unmarshal([]byte(`{"1":{"diameter":0}}`), &tools))
}

func TestComputeResolution(t *testing.T) {
	wp := NewWorkpiece(Box{Min: Vec3{0, 0, 0}, Max: Vec3{200, 200, 10}})

	assert.InDelta(t, 1.0, ComputeResolution(ResolutionLow, wp, 0), 1e-12)
	assert.InDelta(t, 0.5, ComputeResolution(ResolutionMedium, wp, 0), 1e-12)
	assert.InDelta(t, 0.25, ComputeResolution(ResolutionHigh, wp, 0), 1e-12)
	assert.InDelta(t, 0.7, ComputeResolution(ResolutionManual, wp, 0.7), 1e-12)
}

func TestParseResolutionMode(t *testing.T) {
	m, err := ParseResolutionMode(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, ResolutionHigh, m)

	m, err = ParseResolutionMode("")
	require.NoError(t, err)
	assert.Equal(t, ResolutionMedium, m)

	_, err = ParseResolutionMode("ultra")
	assert.Error(t, err)
}

func TestToolPathTruncate(t *testing.T) {
	p := testPath(nil)

	p.Truncate(5)
	assert.Equal(t, 2, p.Len())

	p.Truncate(1)
	require.Equal(t, 1, p.Len())
	assert.Equal(t, Vec3{0, 0, 1}, p.At(0).End)
	assert.InDelta(t, 0.4, p.Duration(), 1e-12)

	p.Add(Move{Kind: MoveCut, Start: Vec3{0, 0, 1}, End: Vec3{3, 0, 1}, StartTime: 0.4, Duration: 1})
	assert.Equal(t, 2, p.Len())

	p.Truncate(-1)
	assert.Equal(t, 0, p.Len())

	p.Seal()
	assert.Panics(t, func() { p.Truncate(0) })
}

func TestSimulationValidateResolvesAutomaticWorkpiece(t *testing.T) {
	sim := Simulation{Path: testPath(nil), Workpiece: AutomaticWorkpiece(2), Resolution: 1}

	assert.NoError(t, sim.Validate())
	assert.Equal(t, NewSimulation(testPath(nil), 0, AutomaticWorkpiece(2), 1).ComputeHash(), sim.ComputeHash())
}
