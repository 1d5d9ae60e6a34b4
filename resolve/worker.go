package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// Worker resolves one request. It is used once: Run or Start, not both.
type Worker struct {
	req      Request
	computer Computer
	task     *task.Task
	logger   *slog.Logger
	onDone   func(Result)
	surface  []surface.Option
	now      func() time.Time

	once sync.Once
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithCompletion registers a callback invoked exactly once with the result.
func WithCompletion(fn func(Result)) WorkerOption {
	return func(w *Worker) {
		w.onDone = fn
	}
}

// WithSurfaceOptions configures surfaces decoded from cache records.
func WithSurfaceOptions(opts ...surface.Option) WorkerOption {
	return func(w *Worker) {
		w.surface = append(w.surface, opts...)
	}
}

// NewWorker creates a worker for req. t must not be shared with another
// running worker; pass a Fork of the session task.
func NewWorker(req Request, computer Computer, t *task.Task, opts ...WorkerOption) *Worker {
	w := &Worker{
		req:      req,
		computer: computer,
		task:     t,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.task == nil {
		w.task = task.New(task.WithLogger(w.logger))
	}
	w.logger = w.logger.With("request", req.ID)
	return w
}

// Start runs the worker on its own goroutine. The channel receives the
// result and is then closed.
func (w *Worker) Start() <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- w.Run()
	}()
	return ch
}

// Run resolves the request on the calling goroutine. Lookup and compute
// share one outer task scope, so a cancellation raised during the lookup
// still stops the compute.
func (w *Worker) Run() Result {
	start := w.now()
	res := Result{ID: w.req.ID, Trace: []State{StateStart}}

	w.task.Begin()
	defer w.task.End()

	res.Hash = w.req.Simulation.ComputeHash()

	res.Trace = append(res.Trace, StateCacheLookup)
	s, outcome, path := w.lookup(res)
	res.Lookup = outcome
	if s != nil {
		res.Trace = append(res.Trace, StateCacheHit)
		res.Surface = s
		res.Source = SourceCache
		res.CachePath = path
	} else {
		res.Trace = append(res.Trace, StateCacheMiss, StateCompute)
		res.Surface, res.Failure = w.compute()
		if res.Surface != nil {
			res.Source = SourceCompute
		}
	}

	res.Trace = append(res.Trace, StateDone)
	res.Elapsed = w.now().Sub(start)
	w.complete(res)
	return res
}

// lookup tries the disk cache inside its own task scope. Every failure is
// logged and reported as a miss.
func (w *Worker) lookup(res Result) (s surface.Surface, outcome LookupOutcome, path string) {
	w.task.Begin()
	defer w.task.End()

	if w.req.Filename == "" {
		return nil, LookupAbsent, ""
	}
	w.task.Update(task.Indeterminate, "Checking cache")

	path, compressed, ok := SelectRecord(w.req.Filename)
	if !ok {
		w.logger.Debug("no cache record", "candidate", CachePath(w.req.Filename))
		return nil, LookupAbsent, ""
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("cache lookup panicked", "path", path, "panic", r)
			s, outcome = nil, LookupCorrupt
		}
	}()

	tris, outcome, err := readRecord(w.task, path, compressed, res.Hash)
	if err != nil {
		w.logger.Info("cache miss", "path", path, "outcome", outcome.String(), "error", err)
		return nil, outcome, path
	}
	w.logger.Info("cache hit", "path", path, "triangles", len(tris))
	return surface.NewElementSurface(tris, w.surface...), LookupHit, path
}

// compute renders the simulation. Errors are logged and leave the surface
// unset. A request cancelled before compute starts never reaches the
// computer.
func (w *Worker) compute() (s surface.Surface, err error) {
	if w.task.ShouldQuit() {
		w.logger.Info("surface computation skipped", "reason", "interrupted")
		return nil, task.ErrInterrupted
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("computing surface panicked: %v", r)
			w.logger.Error("surface computation failed", "error", err)
		}
	}()

	s, err = w.computer.ComputeSurfaceTask(w.task, w.req.Simulation)
	switch {
	case errors.Is(err, task.ErrInterrupted):
		w.logger.Info("surface computation interrupted")
		return nil, err
	case err != nil:
		w.logger.Error("surface computation failed", "error", err)
		return nil, err
	}
	if s == nil {
		err = errors.New("computer returned no surface")
		w.logger.Error("surface computation failed", "error", err)
		return nil, err
	}
	return s, nil
}

func (w *Worker) complete(res Result) {
	w.once.Do(func() {
		if w.onDone == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("completion callback panicked", "panic", r)
			}
		}()
		w.onDone(res)
	})
}
