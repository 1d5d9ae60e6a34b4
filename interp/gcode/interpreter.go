// Package gcode interprets an RS-274 subset into machine moves.
//
// Information Hiding:
// - Tokenizing and modal state hidden inside Interpreter
// - Arcs flattened into straight moves before reaching the controller
// - Cancellation polled once per block
package gcode

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/richinex/cutsim/machine"
	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/task"
)

// DefaultArcSegment is the maximum chord length used to flatten arcs.
const DefaultArcSegment = 0.5

// SyntaxError reports a program error with its location.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

type motion int

const (
	motionNone motion = iota
	motionRapid
	motionLinear
	motionArcCW
	motionArcCCW
)

// Interpreter executes G-code programs against a Controller.
type Interpreter struct {
	ctrl       *machine.Controller
	cancel     task.Canceller
	arcSegment float64

	mode        motion
	pendingTool int
	hasPending  bool
	ended       bool
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithArcSegment sets the maximum chord length for flattened arcs.
func WithArcSegment(l float64) Option {
	return func(in *Interpreter) {
		if l > 0 {
			in.arcSegment = l
		}
	}
}

// New creates an interpreter. cancel may be nil.
func New(ctrl *machine.Controller, cancel task.Canceller, opts ...Option) *Interpreter {
	in := &Interpreter{
		ctrl:       ctrl,
		cancel:     cancel,
		arcSegment: DefaultArcSegment,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Read executes the program at path.
func (in *Interpreter) Read(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return in.Run(path, f)
}

// Run executes a program read from r. name is used in error messages.
// Cancellation stops execution without error.
func (in *Interpreter) Run(name string, r io.Reader) error {
	in.ended = false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if in.cancel != nil && in.cancel.ShouldQuit() {
			return nil
		}
		words, err := tokenize(scanner.Text())
		if err != nil {
			return &SyntaxError{File: name, Line: line, Msg: err.Error()}
		}
		if len(words) == 0 {
			continue
		}
		if err := in.execute(words); err != nil {
			return &SyntaxError{File: name, Line: line, Msg: err.Error()}
		}
		if in.ended {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

type word struct {
	letter byte
	value  float64
}

// tokenize strips comments and splits a block into letter/number words.
// Block-delete lines and program delimiters yield no words.
func tokenize(text string) ([]word, error) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] == '%' || text[0] == '/' {
		return nil, nil
	}

	var b strings.Builder
	depth := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '(':
			depth++
		case ch == ')':
			if depth == 0 {
				return nil, fmt.Errorf("unbalanced ')'")
			}
			depth--
		case depth > 0:
		case ch == ';':
			i = len(text)
		default:
			b.WriteByte(ch)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unterminated comment")
	}

	s := strings.ToUpper(b.String())
	var words []word
	for i := 0; i < len(s); {
		ch := s[i]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			i++
			continue
		}
		if ch < 'A' || ch > 'Z' {
			return nil, fmt.Errorf("unexpected character %q", ch)
		}
		i++
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		start := i
		for i < len(s) && (s[i] == '+' || s[i] == '-' || s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if start == i {
			return nil, fmt.Errorf("missing value for %c word", ch)
		}
		v, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q for %c word", s[start:i], ch)
		}
		words = append(words, word{letter: ch, value: v})
	}
	return words, nil
}

func code(v float64) (int, bool) {
	n := math.Round(v)
	return int(n), math.Abs(v-n) < 1e-9
}

func (in *Interpreter) execute(words []word) error {
	var (
		axes     machine.Axes
		offsets  [2]float64
		hasArcIJ bool
		dwell    = -1.0
		doDwell  bool
		toolSwap bool
		motionIn = motionNone
	)

	for _, w := range words {
		switch w.letter {
		case 'N', 'S', 'H', 'D':
		case 'F':
			if err := in.ctrl.SetFeed(w.value); err != nil {
				return err
			}
		case 'T':
			id, ok := code(w.value)
			if !ok || id < 0 {
				return fmt.Errorf("invalid tool number %g", w.value)
			}
			in.pendingTool = id
			in.hasPending = true
		case 'X':
			axes.Set(machine.AxisX, w.value)
		case 'Y':
			axes.Set(machine.AxisY, w.value)
		case 'Z':
			axes.Set(machine.AxisZ, w.value)
		case 'I':
			offsets[0] = w.value
			hasArcIJ = true
		case 'J':
			offsets[1] = w.value
			hasArcIJ = true
		case 'P':
			dwell = w.value
		case 'R':
			return fmt.Errorf("R-form arcs are not supported")
		case 'G':
			g, ok := code(w.value)
			if !ok {
				return fmt.Errorf("unsupported G%g", w.value)
			}
			switch g {
			case 0:
				motionIn = motionRapid
			case 1:
				motionIn = motionLinear
			case 2:
				motionIn = motionArcCW
			case 3:
				motionIn = motionArcCCW
			case 4:
				doDwell = true
			case 17, 40, 49, 54, 55, 56, 57, 58, 59, 61, 64, 80, 94:
			case 18, 19:
				return fmt.Errorf("only the XY plane (G17) is supported")
			case 20:
				in.ctrl.SetUnits(machine.Inches)
			case 21:
				in.ctrl.SetUnits(machine.Millimetres)
			case 90:
				in.ctrl.SetIncremental(false)
			case 91:
				in.ctrl.SetIncremental(true)
			default:
				return fmt.Errorf("unsupported G%d", g)
			}
		case 'M':
			m, ok := code(w.value)
			if !ok {
				return fmt.Errorf("unsupported M%g", w.value)
			}
			switch m {
			case 0, 1, 3, 4, 5, 7, 8, 9:
			case 2, 30:
				in.ended = true
			case 6:
				toolSwap = true
			default:
				return fmt.Errorf("unsupported M%d", m)
			}
		default:
			return fmt.Errorf("unsupported word %c", w.letter)
		}
	}

	if toolSwap {
		if !in.hasPending {
			return fmt.Errorf("M6 without a selected tool")
		}
		if err := in.ctrl.SetTool(in.pendingTool); err != nil {
			return err
		}
	}

	if doDwell {
		if dwell < 0 {
			return fmt.Errorf("G4 requires a P word")
		}
		if err := in.ctrl.Dwell(dwell); err != nil {
			return err
		}
	}

	if motionIn != motionNone {
		in.mode = motionIn
	}
	if axes.Empty() {
		return nil
	}

	switch in.mode {
	case motionRapid:
		in.ctrl.Rapid(in.ctrl.Target(axes))
	case motionLinear:
		return in.ctrl.Cut(in.ctrl.Target(axes))
	case motionArcCW, motionArcCCW:
		if !hasArcIJ {
			return fmt.Errorf("arc requires I or J")
		}
		return in.arc(in.ctrl.Target(axes), offsets, in.mode == motionArcCW)
	default:
		return fmt.Errorf("axis words without a motion mode")
	}
	return nil
}

// arc flattens a helical XY arc into chords no longer than arcSegment.
// I and J are always relative to the start point.
func (in *Interpreter) arc(end model.Vec3, offsets [2]float64, clockwise bool) error {
	start := in.ctrl.Position()
	scale := in.ctrl.Units().Scale()
	cx := start.X + offsets[0]*scale
	cy := start.Y + offsets[1]*scale

	r := math.Hypot(start.X-cx, start.Y-cy)
	if r == 0 {
		return fmt.Errorf("arc radius is zero")
	}
	rEnd := math.Hypot(end.X-cx, end.Y-cy)
	if math.Abs(rEnd-r) > 0.01+0.001*r {
		return fmt.Errorf("arc end point is not on the circle (radius %.4f vs %.4f)", r, rEnd)
	}

	a0 := math.Atan2(start.Y-cy, start.X-cx)
	a1 := math.Atan2(end.Y-cy, end.X-cx)
	sweep := a1 - a0
	if clockwise {
		if sweep >= 0 {
			sweep -= 2 * math.Pi
		}
	} else if sweep <= 0 {
		sweep += 2 * math.Pi
	}

	n := int(math.Ceil(math.Abs(sweep) * r / in.arcSegment))
	if n < 1 {
		n = 1
	}
	for i := 1; i <= n; i++ {
		p := end
		if i < n {
			f := float64(i) / float64(n)
			a := a0 + sweep*f
			p = model.Vec3{
				X: cx + r*math.Cos(a),
				Y: cy + r*math.Sin(a),
				Z: start.Z + (end.Z-start.Z)*f,
			}
		}
		if err := in.ctrl.Cut(p); err != nil {
			return err
		}
	}
	return nil
}
