package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/storage"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// Journal records finished requests.
type Journal interface {
	RecordResolution(ctx context.Context, rec storage.ResolutionRecord) (string, error)
}

// Service spawns one Worker per request, keeps recently produced surfaces
// in memory and optionally writes computed surfaces back to disk.
// Same-key requests are not deduplicated.
type Service struct {
	computer Computer
	task     *task.Task
	logger   *slog.Logger
	surface  []surface.Option

	memorySize int
	memory     *lru.Cache[model.Hash, surface.Surface]
	journal    Journal
	writeBack  bool
	compress   bool

	wg sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMemoryCache keeps up to entries surfaces in memory. Zero disables
// the memory tier.
func WithMemoryCache(entries int) ServiceOption {
	return func(s *Service) {
		s.memorySize = entries
	}
}

// WithJournal records every finished request.
func WithJournal(j Journal) ServiceOption {
	return func(s *Service) {
		s.journal = j
	}
}

// WithWriteBack writes computed surfaces to the cache record beside the
// description file, bzip2-compressed when compress is set.
func WithWriteBack(compress bool) ServiceOption {
	return func(s *Service) {
		s.writeBack = true
		s.compress = compress
	}
}

// WithServiceSurfaceOptions configures surfaces decoded from cache records.
func WithServiceSurfaceOptions(opts ...surface.Option) ServiceOption {
	return func(s *Service) {
		s.surface = append(s.surface, opts...)
	}
}

// NewService creates a service. Worker tasks are forked from parent so
// interrupting parent reaches every in-flight request.
func NewService(computer Computer, parent *task.Task, opts ...ServiceOption) (*Service, error) {
	if computer == nil {
		return nil, errors.New("resolve: nil computer")
	}
	s := &Service{
		computer: computer,
		task:     parent,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.task == nil {
		s.task = task.New(task.WithLogger(s.logger))
	}
	if s.memorySize > 0 {
		cache, err := lru.New[model.Hash, surface.Surface](s.memorySize)
		if err != nil {
			return nil, fmt.Errorf("creating memory cache: %w", err)
		}
		s.memory = cache
	}
	return s, nil
}

// Resolve starts resolving req and returns a channel that receives the
// result once. Cancelling ctx interrupts the request.
func (s *Service) Resolve(ctx context.Context, req Request) <-chan Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	ch := make(chan Result, 1)

	if res, ok := s.fromMemory(req); ok {
		s.record(ctx, req, res)
		ch <- res
		close(ch)
		return ch
	}

	t := s.task.Fork()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ch)

		stop := t.WithContext(ctx)
		res := NewWorker(req, s.computer, t,
			WithLogger(s.logger),
			WithSurfaceOptions(s.surface...),
		).Run()
		stop()

		s.retain(req, res)
		s.record(ctx, req, res)
		ch <- res
	}()
	return ch
}

// Wait blocks until every spawned worker has delivered its result.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Forget drops every surface held in memory.
func (s *Service) Forget() {
	if s.memory != nil {
		s.memory.Purge()
	}
}

func (s *Service) fromMemory(req Request) (Result, bool) {
	if s.memory == nil {
		return Result{}, false
	}
	hash := req.Simulation.ComputeHash()
	cached, ok := s.memory.Get(hash)
	if !ok {
		return Result{}, false
	}
	s.logger.Debug("memory hit", "request", req.ID, "hash", hash)
	return Result{
		ID:      req.ID,
		Hash:    hash,
		Surface: cached.Clone(),
		Source:  SourceMemory,
		Trace:   []State{StateStart, StateDone},
	}, true
}

// retain keeps a clone of a produced surface and writes computed surfaces
// back to disk when enabled.
func (s *Service) retain(req Request, res Result) {
	if !res.OK() {
		return
	}
	if s.memory != nil {
		s.memory.Add(res.Hash, res.Surface.Clone())
	}
	if !s.writeBack || res.Source != SourceCompute || req.Filename == "" {
		return
	}
	path, err := WriteRecord(req.Filename, res.Hash, res.Surface.Triangles(), s.compress)
	if err != nil {
		s.logger.Warn("cache write failed", "request", req.ID, "error", err)
		return
	}
	s.logger.Info("cache record written", "request", req.ID, "path", path)
}

func (s *Service) record(ctx context.Context, req Request, res Result) {
	if s.journal == nil {
		return
	}
	rec := storage.ResolutionRecord{
		ID:       res.ID,
		Hash:     res.Hash.String(),
		Filename: req.Filename,
		Source:   res.Source.String(),
		Lookup:   res.Lookup.String(),
		Elapsed:  res.Elapsed,
	}
	if res.Surface != nil {
		rec.Triangles = res.Surface.Count()
	}
	if res.Failure != nil {
		rec.Error = res.Failure.Error()
	}
	if _, err := s.journal.RecordResolution(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("journal write failed", "request", req.ID, "error", err)
	}
}
