// Package resolve turns surface requests into surfaces, from the on-disk
// cache when a valid record exists and by computation otherwise.
//
// Information Hiding:
// - Cache file naming and the compressed-record preference hidden in lookup
// - Cache failures reduced to a miss, never surfaced to the requester
// - Each request runs on its own goroutine with its own forked task
package resolve

import (
	"time"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// State is a step of the resolution state machine.
type State int

const (
	StateStart State = iota
	StateCacheLookup
	StateCacheHit
	StateCacheMiss
	StateCompute
	StateDone
)

var stateNames = [...]string{"start", "cache_lookup", "cache_hit", "cache_miss", "compute", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// LookupOutcome says why a cache lookup hit or missed. It is diagnostic
// only: every outcome other than LookupHit is handled as a miss.
type LookupOutcome int

const (
	LookupNone        LookupOutcome = iota // no lookup performed
	LookupAbsent                           // no record on disk
	LookupStale                            // record for a different simulation
	LookupCorrupt                          // header or body failed to parse
	LookupUnreadable                       // open or I/O failure
	LookupInterrupted                      // cancelled while reading the body
	LookupHit
)

var lookupNames = [...]string{"none", "absent", "stale", "corrupt", "unreadable", "interrupted", "hit"}

func (o LookupOutcome) String() string {
	if int(o) < len(lookupNames) {
		return lookupNames[o]
	}
	return "unknown"
}

// Source says where a result's surface came from.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceCompute
	SourceMemory
)

var sourceNames = [...]string{"none", "cache", "compute", "memory"}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// Computer renders a simulation under a caller-owned task.
type Computer interface {
	ComputeSurfaceTask(t *task.Task, sim model.Simulation) (surface.Surface, error)
}

// Request asks for the surface of one simulation. Filename is the
// simulation description file whose cache record sits beside it; an empty
// Filename skips the disk cache.
type Request struct {
	ID         string
	Filename   string
	Simulation model.Simulation
}

// Result is delivered exactly once per request.
type Result struct {
	ID        string
	Hash      model.Hash
	Surface   surface.Surface // nil when nothing was produced
	Source    Source
	Lookup    LookupOutcome
	CachePath string // record that was read, if any
	Trace     []State
	Elapsed   time.Duration
	Failure   error // why nothing was produced, task.ErrInterrupted on cancellation
}

// OK reports whether a surface was produced.
func (r Result) OK() bool {
	return r.Surface != nil
}
