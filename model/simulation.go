package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hash is the content hash of a Simulation: 16 lowercase hex characters.
type Hash string

// String returns the hash text.
func (h Hash) String() string {
	return string(h)
}

// hashVersion is mixed into every hash so layout changes invalidate caches.
const hashVersion = "cutsim/sim/1"

// Simulation identifies exactly one desired surface result.
type Simulation struct {
	Path       *ToolPath
	Time       float64 // seconds; <= 0 means the whole path
	Workpiece  Workpiece
	Resolution float64 // grid cell size in millimetres
}

// NewSimulation builds a simulation snapshot. The path is sealed, automatic
// workpieces are resolved and the time cutoff is normalised, so two requests
// for the same result hash identically.
func NewSimulation(path *ToolPath, time float64, wp Workpiece, resolution float64) Simulation {
	if path == nil {
		path = NewToolPath(nil)
	}
	path.Seal()
	sim := Simulation{
		Path:       path,
		Time:       time,
		Workpiece:  wp.Resolve(path),
		Resolution: resolution,
	}
	sim.Time = sim.EffectiveTime()
	return sim
}

// EffectiveTime returns the cutoff clamped to the path duration.
func (s Simulation) EffectiveTime() float64 {
	d := s.Path.Duration()
	if s.Time <= 0 || s.Time > d {
		return d
	}
	return s.Time
}

// Validate checks that the simulation can be rendered. An automatic
// workpiece is checked against the bounds it resolves to.
func (s Simulation) Validate() error {
	if s.Resolution <= 0 || math.IsNaN(s.Resolution) || math.IsInf(s.Resolution, 0) {
		return fmt.Errorf("invalid resolution %g", s.Resolution)
	}
	if wp := s.Workpiece.Resolve(s.Path); !wp.IsValid() {
		return fmt.Errorf("workpiece has no volume: %v..%v", wp.Bounds.Min, wp.Bounds.Max)
	}
	return nil
}

// ComputeHash returns a deterministic fingerprint of every field that
// affects the rendered mesh: moves, geometry of the tools they use, the
// effective time cutoff, workpiece bounds and resolution.
//
// xxHash is non-cryptographic; collisions between distinct simulations are
// trusted not to happen.
func (s Simulation) ComputeHash() Hash {
	h := newHashWriter()
	h.str(hashVersion)

	wp := s.Workpiece.Resolve(s.Path)
	h.vec(wp.Bounds.Min)
	h.vec(wp.Bounds.Max)
	h.float(s.Resolution)
	h.float(s.EffectiveTime())

	used := make(map[int]struct{})
	h.uint(uint64(s.Path.Len()))
	for i := 0; i < s.Path.Len(); i++ {
		m := s.Path.At(i)
		h.uint(uint64(m.Kind))
		h.vec(m.Start)
		h.vec(m.End)
		h.float(m.Feed)
		h.uint(uint64(int64(m.Tool)))
		h.float(m.StartTime)
		h.float(m.Duration)
		used[m.Tool] = struct{}{}
	}

	ids := make([]int, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var tools *ToolTable
	if s.Path != nil {
		tools = s.Path.Tools()
	}
	for _, id := range ids {
		t := tools.Get(id)
		h.uint(uint64(int64(id)))
		h.str(string(t.Shape))
		h.float(t.Diameter)
		h.float(t.Length)
	}

	return h.sum()
}

// ParseHash validates hash text read from storage.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 16 {
		return "", fmt.Errorf("hash must be 16 hex characters, got %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return Hash(s), nil
}

// hashWriter feeds fixed-width little-endian values into an xxhash digest.
type hashWriter struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHashWriter() *hashWriter {
	return &hashWriter{d: xxhash.New()}
}

func (h *hashWriter) uint(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hashWriter) float(f float64) {
	h.uint(math.Float64bits(f))
}

func (h *hashWriter) vec(v Vec3) {
	h.float(v.X)
	h.float(v.Y)
	h.float(v.Z)
}

// str is length-prefixed to keep adjacent strings unambiguous.
func (h *hashWriter) str(s string) {
	h.uint(uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *hashWriter) sum() Hash {
	binary.BigEndian.PutUint64(h.buf[:], h.d.Sum64())
	return Hash(hex.EncodeToString(h.buf[:]))
}
