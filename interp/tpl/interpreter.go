// Package tpl runs tool path language scripts: JavaScript programs that
// drive the machine through a small set of host functions.
//
// Information Hiding:
// - JavaScript engine (goja) hidden behind Read and Terminate
// - Host function argument conventions hidden in bindings
package tpl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/richinex/cutsim/machine"
)

// Interpreter executes TPL scripts against a Controller. Terminate may be
// called from any goroutine to stop a running script.
type Interpreter struct {
	ctrl *machine.Controller
	out  io.Writer

	mu         sync.Mutex
	vm         *goja.Runtime
	terminated bool
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets where print() writes.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		if w != nil {
			in.out = w
		}
	}
}

// New creates an interpreter bound to ctrl.
func New(ctrl *machine.Controller, opts ...Option) *Interpreter {
	in := &Interpreter{ctrl: ctrl, out: os.Stdout}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Read executes the script at path.
func (in *Interpreter) Read(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return in.Run(path, string(src))
}

// Run executes src. A script stopped by Terminate returns nil.
func (in *Interpreter) Run(name, src string) error {
	vm := goja.New()
	if err := in.install(vm); err != nil {
		return err
	}

	in.mu.Lock()
	if in.terminated {
		in.mu.Unlock()
		return nil
	}
	in.vm = vm
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.vm = nil
		in.mu.Unlock()
	}()

	_, err := vm.RunScript(name, src)
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil
	}
	return fmt.Errorf("running %s: %w", name, err)
}

// Terminate asks a running script to stop. Scripts started afterwards on
// this interpreter do not run.
func (in *Interpreter) Terminate() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.terminated = true
	if in.vm != nil {
		in.vm.Interrupt("terminated")
	}
}

func (in *Interpreter) install(vm *goja.Runtime) error {
	bindings := map[string]func(goja.FunctionCall) goja.Value{
		"rapid": func(call goja.FunctionCall) goja.Value {
			in.ctrl.Rapid(in.ctrl.Target(axes(call)))
			return goja.Undefined()
		},
		"cut": func(call goja.FunctionCall) goja.Value {
			if err := in.ctrl.Cut(in.ctrl.Target(axes(call))); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		},
		"feed": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return vm.ToValue(in.ctrl.Feed() / in.ctrl.Units().Scale())
			}
			if err := in.ctrl.SetFeed(call.Argument(0).ToFloat()); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		},
		"speed": func(call goja.FunctionCall) goja.Value {
			return goja.Undefined()
		},
		"tool": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return vm.ToValue(in.ctrl.Tool())
			}
			if err := in.ctrl.SetTool(int(call.Argument(0).ToInteger())); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		},
		"dwell": func(call goja.FunctionCall) goja.Value {
			if err := in.ctrl.Dwell(call.Argument(0).ToFloat()); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		},
		"units": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return vm.ToValue(in.ctrl.Units().String())
			}
			switch strings.ToLower(call.Argument(0).String()) {
			case "mm", "metric":
				in.ctrl.SetUnits(machine.Millimetres)
			case "inch", "in", "imperial":
				in.ctrl.SetUnits(machine.Inches)
			default:
				panic(vm.NewTypeError("unknown units %q", call.Argument(0).String()))
			}
			return goja.Undefined()
		},
		"incremental": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return vm.ToValue(in.ctrl.Incremental())
			}
			in.ctrl.SetIncremental(call.Argument(0).ToBoolean())
			return goja.Undefined()
		},
		"position": func(call goja.FunctionCall) goja.Value {
			p := in.ctrl.Position()
			s := in.ctrl.Units().Scale()
			return vm.ToValue(map[string]float64{"x": p.X / s, "y": p.Y / s, "z": p.Z / s})
		},
		"print": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			fmt.Fprintln(in.out, strings.Join(parts, " "))
			return goja.Undefined()
		},
	}

	for name, fn := range bindings {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}

var axisNames = [3]string{"x", "y", "z"}

// axes accepts either positional (x, y, z) arguments or a single object
// with x, y and z properties. Missing, undefined or null axes are unset.
func axes(call goja.FunctionCall) machine.Axes {
	var a machine.Axes
	if len(call.Arguments) == 1 {
		if obj, ok := call.Arguments[0].(*goja.Object); ok {
			for i, name := range axisNames {
				if v := obj.Get(name); defined(v) {
					a.Set(machine.Axis(i), v.ToFloat())
				}
			}
			return a
		}
	}
	for i := 0; i < len(axisNames) && i < len(call.Arguments); i++ {
		if v := call.Arguments[i]; defined(v) {
			a.Set(machine.Axis(i), v.ToFloat())
		}
	}
	return a
}

func defined(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
