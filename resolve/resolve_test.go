package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/storage"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

var testTriangles = []surface.Triangle{
	{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}},
	{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 0, Z: -1}, {X: 0.5, Y: 0.5, Z: -1}, {X: 1, Y: 0, Z: -1}},
	{{X: 2, Y: 2, Z: 2}, {X: 3, Y: 2, Z: 2}, {X: 2, Y: 3, Z: 2.5}},
}

// dropHalf keeps the first half of the triangles.
type dropHalf struct{}

func (dropHalf) Reduce(_ task.Canceller, tris []surface.Triangle) ([]surface.Triangle, error) {
	return tris[:len(tris)/2], nil
}

type fakeComputer struct {
	mu    sync.Mutex
	calls int
	err   error
	// waitQuit makes the computation run until its task is cancelled.
	waitQuit bool
	started  chan struct{}
}

func (f *fakeComputer) ComputeSurfaceTask(t *task.Task, _ model.Simulation) (surface.Surface, error) {
	t.Begin()
	defer t.End()

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.waitQuit {
		for !t.ShouldQuit() {
			time.Sleep(time.Millisecond)
		}
		return nil, task.ErrInterrupted
	}
	if f.err != nil {
		return nil, f.err
	}
	tris := append([]surface.Triangle(nil), testTriangles...)
	return surface.NewElementSurface(tris, surface.WithReducer(dropHalf{})), nil
}

func (f *fakeComputer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func simulation(length float64) model.Simulation {
	p := model.NewToolPath(nil)
	p.Add(model.Move{
		Kind:     model.MoveCut,
		Start:    model.Vec3{Z: -1},
		End:      model.Vec3{X: length, Z: -1},
		Feed:     60,
		Duration: length,
	})
	wp := model.NewWorkpiece(model.Box{Min: model.Vec3{Z: -5}, Max: model.Vec3{X: 10, Y: 10}})
	return model.NewSimulation(p, 0, wp, 0.5)
}

func description(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"files": []}`), 0644))
	return path
}

func run(t *testing.T, req Request, c Computer) Result {
	t.Helper()
	return NewWorker(req, c, task.New()).Run()
}

func TestCachePath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "job.stl"), CachePath(filepath.Join("dir", "job.json")))
	assert.Equal(t, "job.stl", CachePath("job"))
	assert.Equal(t, "job.v2.stl", CachePath("job.v2.json"))
}

func TestCacheHitDoesNotCompute(t *testing.T) {
	desc := description(t)
	sim := simulation(5)
	_, err := WriteRecord(desc, sim.ComputeHash(), testTriangles, false)
	require.NoError(t, err)

	c := &fakeComputer{}
	res := run(t, Request{ID: "r1", Filename: desc, Simulation: sim}, c)

	require.True(t, res.OK())
	assert.Equal(t, 0, c.count())
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, LookupHit, res.Lookup)
	assert.Equal(t, []State{StateStart, StateCacheLookup, StateCacheHit, StateDone}, res.Trace)
	assert.Equal(t, CachePath(desc), res.CachePath)
	assert.Equal(t, testTriangles, res.Surface.Triangles())
	assert.Equal(t, sim.ComputeHash(), res.Hash)
	assert.Equal(t, "r1", res.ID)
}

func TestHashMismatchComputes(t *testing.T) {
	desc := description(t)
	_, err := WriteRecord(desc, simulation(4).ComputeHash(), testTriangles, false)
	require.NoError(t, err)

	c := &fakeComputer{}
	res := run(t, Request{Filename: desc, Simulation: simulation(5)}, c)

	require.True(t, res.OK())
	assert.Equal(t, 1, c.count())
	assert.Equal(t, SourceCompute, res.Source)
	assert.Equal(t, LookupStale, res.Lookup)
	assert.Equal(t, []State{StateStart, StateCacheLookup, StateCacheMiss, StateCompute, StateDone}, res.Trace)
}

func TestFreshSimulationComputes(t *testing.T) {
	c := &fakeComputer{}
	res := run(t, Request{Filename: description(t), Simulation: simulation(5)}, c)

	assert.Equal(t, 1, c.count())
	assert.Equal(t, LookupAbsent, res.Lookup)
	assert.Contains(t, res.Trace, StateCompute)
}

func TestNoFilenameSkipsCache(t *testing.T) {
	c := &fakeComputer{}
	res := run(t, Request{Simulation: simulation(5)}, c)

	assert.Equal(t, 1, c.count())
	assert.Equal(t, LookupAbsent, res.Lookup)
}

func TestCompressedRecordWins(t *testing.T) {
	desc := description(t)
	sim := simulation(5)

	// Plain record is stale, compressed record is valid.
	_, err := WriteRecord(desc, simulation(4).ComputeHash(), testTriangles[:1], false)
	require.NoError(t, err)
	_, err = WriteRecord(desc, sim.ComputeHash(), testTriangles, true)
	require.NoError(t, err)

	c := &fakeComputer{}
	res := run(t, Request{Filename: desc, Simulation: sim}, c)
	require.True(t, res.OK())
	assert.Equal(t, 0, c.count())
	assert.Equal(t, CachePath(desc)+CompressedSuffix, res.CachePath)
	assert.Equal(t, len(testTriangles), res.Surface.Count())
}

func TestCompressedRecordWinsEvenWhenStale(t *testing.T) {
	desc := description(t)
	sim := simulation(5)

	_, err := WriteRecord(desc, simulation(4).ComputeHash(), testTriangles, true)
	require.NoError(t, err)
	// A plain write removes the compressed record, so move it aside first.
	require.NoError(t, os.Rename(CachePath(desc)+CompressedSuffix, filepath.Join(filepath.Dir(desc), "keep.bz2")))
	_, err = WriteRecord(desc, sim.ComputeHash(), testTriangles, false)
	require.NoError(t, err)
	require.NoError(t, os.Rename(filepath.Join(filepath.Dir(desc), "keep.bz2"), CachePath(desc)+CompressedSuffix))

	c := &fakeComputer{}
	res := run(t, Request{Filename: desc, Simulation: sim}, c)
	assert.Equal(t, 1, c.count())
	assert.Equal(t, LookupStale, res.Lookup)
}

func TestDamagedRecordsFallBackToCompute(t *testing.T) {
	sim := simulation(5)

	tests := []struct {
		name   string
		damage func(t *testing.T, desc string)
		want   LookupOutcome
	}{
		{
			name: "truncated body",
			damage: func(t *testing.T, desc string) {
				path, err := WriteRecord(desc, sim.ComputeHash(), testTriangles, false)
				require.NoError(t, err)
				info, err := os.Stat(path)
				require.NoError(t, err)
				require.NoError(t, os.Truncate(path, info.Size()-10))
			},
			want: LookupCorrupt,
		},
		{
			name: "zero length",
			damage: func(t *testing.T, desc string) {
				require.NoError(t, os.WriteFile(CachePath(desc), nil, 0644))
			},
			want: LookupCorrupt,
		},
		{
			name: "foreign header",
			damage: func(t *testing.T, desc string) {
				require.NoError(t, os.WriteFile(CachePath(desc), []byte(strings.Repeat("solid x ", 20)), 0644))
			},
			want: LookupCorrupt,
		},
		{
			name: "zero length compressed",
			damage: func(t *testing.T, desc string) {
				require.NoError(t, os.WriteFile(CachePath(desc)+CompressedSuffix, nil, 0644))
			},
		},
		{
			name: "compressed garbage",
			damage: func(t *testing.T, desc string) {
				require.NoError(t, os.WriteFile(CachePath(desc)+CompressedSuffix, []byte("not bzip2 at all"), 0644))
			},
		},
		{
			name: "directory in place of record",
			damage: func(t *testing.T, desc string) {
				require.NoError(t, os.Mkdir(CachePath(desc), 0755))
			},
			want: LookupAbsent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := description(t)
			tt.damage(t, desc)

			c := &fakeComputer{}
			res := run(t, Request{Filename: desc, Simulation: sim}, c)

			require.True(t, res.OK())
			assert.Equal(t, 1, c.count())
			assert.Equal(t, SourceCompute, res.Source)
			assert.NotEqual(t, LookupHit, res.Lookup)
			if tt.want != LookupNone {
				assert.Equal(t, tt.want, res.Lookup)
			}
		})
	}
}

func TestComputeFailureProducesNoSurface(t *testing.T) {
	var calls int
	var got Result
	c := &fakeComputer{err: errors.New("renderer exploded")}
	w := NewWorker(Request{Simulation: simulation(5)}, c, task.New(),
		WithCompletion(func(r Result) {
			calls++
			got = r
		}))

	res := <-w.Start()

	assert.False(t, res.OK())
	assert.Equal(t, SourceNone, res.Source)
	assert.EqualError(t, res.Failure, "renderer exploded")
	assert.Equal(t, StateDone, res.Trace[len(res.Trace)-1])
	assert.Equal(t, 1, calls)
	assert.Equal(t, res.ID, got.ID)
	assert.False(t, got.OK())
}

type panicky struct{}

func (panicky) ComputeSurfaceTask(*task.Task, model.Simulation) (surface.Surface, error) {
	panic("boom")
}

func TestComputePanicIsContained(t *testing.T) {
	res := run(t, Request{Simulation: simulation(5)}, panicky{})

	assert.False(t, res.OK())
	require.Error(t, res.Failure)
	assert.Contains(t, res.Failure.Error(), "boom")
}

func newService(t *testing.T, c Computer, opts ...ServiceOption) (*Service, *task.Task) {
	t.Helper()
	parent := task.New()
	s, err := NewService(c, parent, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Wait)
	return s, parent
}

func TestServiceAssignsRequestIDs(t *testing.T) {
	s, _ := newService(t, &fakeComputer{})

	a := <-s.Resolve(context.Background(), Request{Simulation: simulation(5)})
	b := <-s.Resolve(context.Background(), Request{Simulation: simulation(5)})
	c := <-s.Resolve(context.Background(), Request{ID: "mine", Simulation: simulation(5)})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "mine", c.ID)
}

func TestServiceMemoryTierReturnsClones(t *testing.T) {
	c := &fakeComputer{}
	s, _ := newService(t, c, WithMemoryCache(4))
	sim := simulation(5)

	first := <-s.Resolve(context.Background(), Request{Simulation: sim})
	require.True(t, first.OK())
	require.NoError(t, first.Surface.Reduce(nil))
	assert.Equal(t, len(testTriangles)/2, first.Surface.Count())

	second := <-s.Resolve(context.Background(), Request{Simulation: sim})
	require.True(t, second.OK())
	assert.Equal(t, SourceMemory, second.Source)
	assert.Equal(t, len(testTriangles), second.Surface.Count())
	assert.Equal(t, 1, c.count())

	require.NoError(t, second.Surface.Reduce(nil))
	third := <-s.Resolve(context.Background(), Request{Simulation: sim})
	assert.Equal(t, len(testTriangles), third.Surface.Count())

	s.Forget()
	<-s.Resolve(context.Background(), Request{Simulation: sim})
	assert.Equal(t, 2, c.count())
}

func TestServiceWithoutMemoryTierRecomputes(t *testing.T) {
	c := &fakeComputer{}
	s, _ := newService(t, c)
	sim := simulation(5)

	<-s.Resolve(context.Background(), Request{Simulation: sim})
	<-s.Resolve(context.Background(), Request{Simulation: sim})
	assert.Equal(t, 2, c.count())
}

func TestServiceWriteBack(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			desc := description(t)
			sim := simulation(5)
			c := &fakeComputer{}
			s, _ := newService(t, c, WithWriteBack(compress))

			res := <-s.Resolve(context.Background(), Request{Filename: desc, Simulation: sim})
			require.Equal(t, SourceCompute, res.Source)

			path, compressed, ok := SelectRecord(desc)
			require.True(t, ok)
			assert.Equal(t, compress, compressed)

			again := <-s.Resolve(context.Background(), Request{Filename: desc, Simulation: sim})
			assert.Equal(t, SourceCache, again.Source)
			assert.Equal(t, path, again.CachePath)
			assert.Equal(t, testTriangles, again.Surface.Triangles())
			assert.Equal(t, 1, c.count())
		})
	}
}

func TestPlainWriteRemovesCompressedRecord(t *testing.T) {
	desc := description(t)
	_, err := WriteRecord(desc, "0000000000000001", testTriangles, true)
	require.NoError(t, err)

	path, err := WriteRecord(desc, "0000000000000002", testTriangles, false)
	require.NoError(t, err)

	assert.Equal(t, CachePath(desc), path)
	_, err = os.Stat(path + CompressedSuffix)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(desc), "*.tmp.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestServiceJournalsResults(t *testing.T) {
	j, err := storage.NewJournalInMemory()
	require.NoError(t, err)
	defer j.Close()

	s, _ := newService(t, &fakeComputer{}, WithJournal(j), WithMemoryCache(2))
	sim := simulation(5)

	first := <-s.Resolve(context.Background(), Request{Simulation: sim})
	<-s.Resolve(context.Background(), Request{Simulation: sim})
	s.Wait()

	records, err := j.ResolutionsByHash(context.Background(), sim.ComputeHash().String())
	require.NoError(t, err)
	require.Len(t, records, 2)

	sources := []string{records[0].Source, records[1].Source}
	assert.ElementsMatch(t, []string{"compute", "memory"}, sources)
	for _, rec := range records {
		assert.Equal(t, len(testTriangles), rec.Triangles)
		if rec.Source == "compute" {
			assert.Equal(t, first.ID, rec.ID)
			assert.Equal(t, "absent", rec.Lookup)
		}
	}
}

func TestServiceJournalsFailures(t *testing.T) {
	j, err := storage.NewJournalInMemory()
	require.NoError(t, err)
	defer j.Close()

	s, _ := newService(t, &fakeComputer{err: errors.New("no stock")}, WithJournal(j))
	res := <-s.Resolve(context.Background(), Request{Simulation: simulation(5)})
	assert.False(t, res.OK())

	records, err := j.ListResolutions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "none", records[0].Source)
	assert.Equal(t, "no stock", records[0].Error)
}

func TestParentInterruptReachesInFlightRequest(t *testing.T) {
	c := &fakeComputer{waitQuit: true, started: make(chan struct{})}
	s, parent := newService(t, c)

	ch := s.Resolve(context.Background(), Request{Simulation: simulation(5)})
	<-c.started
	parent.Interrupt()

	select {
	case res := <-ch:
		assert.False(t, res.OK())
		assert.ErrorIs(t, res.Failure, task.ErrInterrupted)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not observe interrupt")
	}
}

func TestContextCancelInterruptsRequest(t *testing.T) {
	c := &fakeComputer{waitQuit: true, started: make(chan struct{})}
	s, parent := newService(t, c)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Resolve(ctx, Request{Simulation: simulation(5)})
	<-c.started
	cancel()

	select {
	case res := <-ch:
		assert.ErrorIs(t, res.Failure, task.ErrInterrupted)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not observe cancellation")
	}
	assert.False(t, parent.ShouldQuit())
}

func TestInterruptDuringLookupSkipsCompute(t *testing.T) {
	var tk *task.Task
	tk = task.New(task.WithObserver(func(p task.Progress) {
		if p.Message == "Checking cache" {
			tk.Interrupt()
		}
	}))
	c := &fakeComputer{}

	res := NewWorker(Request{Filename: description(t), Simulation: simulation(5)}, c, tk).Run()

	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Failure, task.ErrInterrupted)
	assert.Equal(t, LookupAbsent, res.Lookup)
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, 0, c.count())
	assert.Equal(t, []State{StateStart, StateCacheLookup, StateCacheMiss, StateCompute, StateDone}, res.Trace)
	assert.Equal(t, 0, tk.Depth())

	// The request is spent; the next one on the same task starts clean.
	res = NewWorker(Request{Simulation: simulation(5)}, c, tk).Run()
	assert.True(t, res.OK())
	assert.Equal(t, 1, c.count())
}

func TestCancelDuringLookupReachesScopedCompute(t *testing.T) {
	var tk *task.Task
	tk = task.New(task.WithObserver(func(p task.Progress) {
		if p.Message == "Checking cache" {
			tk.Interrupt()
		}
	}))
	w := NewWorker(Request{Filename: description(t), Simulation: simulation(5)}, nil, tk)

	// A computer that opens its own scope still sees the pending request.
	var sawQuit bool
	w.computer = computerFunc(func(t *task.Task, _ model.Simulation) (surface.Surface, error) {
		t.Begin()
		defer t.End()
		sawQuit = t.ShouldQuit()
		return nil, task.ErrInterrupted
	})
	tk.Begin()
	w.lookup(Result{Hash: simulation(5).ComputeHash()})
	assert.True(t, tk.ShouldQuit())
	_, err := w.computer.ComputeSurfaceTask(tk, simulation(5))
	tk.End()

	assert.ErrorIs(t, err, task.ErrInterrupted)
	assert.True(t, sawQuit)
}

type computerFunc func(*task.Task, model.Simulation) (surface.Surface, error)

func (f computerFunc) ComputeSurfaceTask(t *task.Task, sim model.Simulation) (surface.Surface, error) {
	return f(t, sim)
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	c := &fakeComputer{}
	s, _ := newService(t, c)

	var chans []<-chan Result
	for i := 1; i <= 8; i++ {
		chans = append(chans, s.Resolve(context.Background(), Request{Simulation: simulation(float64(i))}))
	}
	for _, ch := range chans {
		res := <-ch
		assert.True(t, res.OK())
	}
	assert.Equal(t, 8, c.count())
}

func TestNewServiceRejectsNilComputer(t *testing.T) {
	_, err := NewService(nil, task.New())
	assert.Error(t, err)
}
