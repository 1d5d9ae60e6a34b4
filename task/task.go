// Package task provides cooperative cancellation and progress reporting for
// long-running work.
//
// Information Hiding:
// - Scope stack and timing hidden behind Begin/End
// - Cancellation kept as an atomic request counter, never a global flag
// - Embedded script engines reached through the Terminator capability
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInterrupted is returned by operations that stopped at a cancellation
// point. It marks a normal terminal state, not a failure.
var ErrInterrupted = errors.New("task: interrupted")

// Indeterminate is the progress value for work of unknown length.
const Indeterminate = -1.0

// Canceller is the narrow view handed to code that only polls.
type Canceller interface {
	ShouldQuit() bool
}

// Terminator is implemented by collaborators that can be asked to stop
// mid-execution, such as an embedded script interpreter. Terminate may be
// called from any goroutine.
type Terminator interface {
	Terminate()
}

// Progress is one status report from the current scope.
type Progress struct {
	Depth    int
	Fraction float64 // 0..1 or Indeterminate
	Message  string
	Elapsed  time.Duration
}

// Observer receives progress reports. It is called without internal locks
// held and may call back into the task.
type Observer func(Progress)

type scope struct {
	start    time.Time
	epoch    uint64
	fraction float64
	message  string
}

// Task is a stack of nested progress scopes with a cancellation request
// that can be raised from any goroutine.
//
// Begin and End must be balanced by the goroutine that owns the task.
// Interrupt, ShouldQuit and Update are safe for concurrent use.
type Task struct {
	parent      *Task
	parentEpoch uint64

	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	interrupts atomic.Uint64

	mu          sync.Mutex
	scopes      []scope
	idleEpoch   uint64
	terminators map[uint64]Terminator
	nextID      uint64
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the logger used for progress and balance warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(t *Task) {
		t.observer = o
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Task) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a task with no open scope.
func New(opts ...Option) *Task {
	t := &Task{
		logger:      slog.Default(),
		now:         time.Now,
		terminators: make(map[uint64]Terminator),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fork creates a child task with its own scope stack. The child observes
// interrupts raised on the parent after the fork; interrupting the child
// does not affect the parent.
func (t *Task) Fork(opts ...Option) *Task {
	child := New(append([]Option{WithLogger(t.logger), WithClock(t.now)}, opts...)...)
	child.parent = t
	child.parentEpoch = t.interrupts.Load()
	return child
}

// Begin pushes a new scope. A nested scope inherits a cancellation request
// that is still pending for its parent scope.
func (t *Task) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	epoch := t.interrupts.Load()
	if n := len(t.scopes); n > 0 {
		epoch = t.scopes[n-1].epoch
	}
	t.scopes = append(t.scopes, scope{
		start:    t.now(),
		epoch:    epoch,
		fraction: Indeterminate,
	})
}

// Update reports progress for the current scope. It never affects control
// flow.
func (t *Task) Update(fraction float64, message string) {
	t.mu.Lock()
	n := len(t.scopes)
	var p Progress
	if n > 0 {
		s := &t.scopes[n-1]
		s.fraction = fraction
		s.message = message
		p = Progress{Depth: n, Fraction: fraction, Message: message, Elapsed: t.now().Sub(s.start)}
	} else {
		p = Progress{Fraction: fraction, Message: message}
	}
	observer := t.observer
	t.mu.Unlock()

	t.logger.Debug("task progress", "depth", p.Depth, "progress", fraction, "message", message)
	if observer != nil {
		observer(p)
	}
}

// ShouldQuit reports whether cancellation was requested since the outermost
// open scope began, or since the parent was forked.
func (t *Task) ShouldQuit() bool {
	if t.parent != nil && t.parent.interrupts.Load() > t.parentEpoch {
		return true
	}

	t.mu.Lock()
	epoch := t.idleEpoch
	if n := len(t.scopes); n > 0 {
		epoch = t.scopes[n-1].epoch
	}
	t.mu.Unlock()

	return t.interrupts.Load() > epoch
}

// End pops the current scope and returns its elapsed wall time. Calling End
// with no open scope logs a warning and returns zero.
func (t *Task) End() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.scopes)
	if n == 0 {
		t.logger.Warn("task: End called without matching Begin")
		return 0
	}
	s := t.scopes[n-1]
	t.scopes = t.scopes[:n-1]
	if n == 1 {
		t.idleEpoch = t.interrupts.Load()
	}
	return t.now().Sub(s.start)
}

// Interrupt requests cancellation of the running work and asks every
// attached Terminator to stop. It returns without waiting; running code
// stops at its next ShouldQuit check.
func (t *Task) Interrupt() {
	t.interrupts.Add(1)

	t.mu.Lock()
	terms := make([]Terminator, 0, len(t.terminators))
	for _, term := range t.terminators {
		terms = append(terms, term)
	}
	t.mu.Unlock()

	t.logger.Debug("task interrupted", "terminators", len(terms))
	for _, term := range terms {
		term.Terminate()
	}
}

// Attach registers a Terminator for the duration of its execution and
// returns the function that detaches it. If cancellation is already pending
// the Terminator is stopped immediately.
func (t *Task) Attach(term Terminator) (detach func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.terminators[id] = term
	t.mu.Unlock()

	if t.ShouldQuit() {
		term.Terminate()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.terminators, id)
			t.mu.Unlock()
		})
	}
}

// WithContext interrupts the task when ctx is done. The returned function
// releases the association.
func (t *Task) WithContext(ctx context.Context) (stop func()) {
	release := context.AfterFunc(ctx, t.Interrupt)
	return func() { release() }
}

// Depth returns the number of open scopes.
func (t *Task) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scopes)
}

// Status returns the last progress reported in the current scope.
func (t *Task) Status() (fraction float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.scopes)
	if n == 0 {
		return Indeterminate, ""
	}
	return t.scopes[n-1].fraction, t.scopes[n-1].message
}
