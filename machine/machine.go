// Package machine tracks kinematic state and turns interpreter targets into
// timed moves.
//
// Information Hiding:
// - Unit conversion and incremental addressing hidden in Controller
// - Move timing derived from feed rates, never supplied by interpreters
package machine

import (
	"github.com/richinex/cutsim/model"
)

// Sink receives every move an interpreter emits.
type Sink interface {
	Move(m model.Move)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(m model.Move)

// Move calls f(m).
func (f SinkFunc) Move(m model.Move) {
	f(m)
}

// State is a snapshot of the machine after the moves seen so far.
type State struct {
	Position    model.Vec3
	Tool        int
	Time        float64 // seconds
	Distance    float64 // total travel
	CutDistance float64 // travel at feed
	Moves       int
}

// Machine accumulates kinematic state from emitted moves.
type Machine struct {
	state State
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.state = State{}
}

// Move updates state with one emitted move.
func (m *Machine) Move(mv model.Move) {
	m.state.Position = mv.End
	m.state.Tool = mv.Tool
	m.state.Time = mv.EndTime()
	l := mv.Length()
	m.state.Distance += l
	if mv.Kind == model.MoveCut {
		m.state.CutDistance += l
	}
	m.state.Moves++
}

// State returns the current snapshot.
func (m *Machine) State() State {
	return m.state
}
