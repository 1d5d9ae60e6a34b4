// Package stl reads and writes binary STL cache records.
//
// The 80-byte header carries the content hash of the simulation that
// produced the mesh, so a reader can validate a record before paying for
// the body.
//
// Information Hiding:
// - Header text layout hidden behind Header
// - Body decoding is lazy: ReadHeader never touches facets
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

const (
	// HeaderSize is the fixed STL header length.
	HeaderSize = 80
	facetSize  = 50

	// maxFacets bounds the declared count so a corrupt header cannot
	// trigger a huge allocation.
	maxFacets = 1 << 28

	magic     = "cutsim"
	hashField = "hash="
)

var (
	// ErrBadHeader reports a header that is not a cutsim record.
	ErrBadHeader = errors.New("stl: bad header")
	// ErrTruncated reports a record that ends early.
	ErrTruncated = errors.New("stl: truncated record")
	// ErrBadFacet reports non-finite vertex data.
	ErrBadFacet = errors.New("stl: invalid facet")
)

// Header is the metadata stored in a record's first 80 bytes.
type Header struct {
	Name string
	Hash model.Hash
}

// Reader decodes a record in two steps: ReadHeader, then ReadBody.
type Reader struct {
	r          *bufio.Reader
	headerRead bool
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadHeader reads and parses the header. A header without a hash field
// parses with an empty Hash.
func (r *Reader) ReadHeader() (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	r.headerRead = true
	return parseHeader(buf[:])
}

func parseHeader(buf []byte) (Header, error) {
	text := string(bytes.TrimRight(buf, "\x00 "))
	if !strings.HasPrefix(text, magic) {
		return Header{}, ErrBadHeader
	}
	var h Header
	for _, field := range strings.Fields(text[len(magic):]) {
		switch {
		case strings.HasPrefix(field, hashField):
			hash, err := model.ParseHash(field[len(hashField):])
			if err != nil {
				return Header{}, fmt.Errorf("%w: %v", ErrBadHeader, err)
			}
			h.Hash = hash
		case strings.HasPrefix(field, "name="):
			h.Name = field[len("name="):]
		}
	}
	return h, nil
}

// ReadBody decodes the facets following the header. c is polled
// periodically and may be nil.
func (r *Reader) ReadBody(c task.Canceller) ([]surface.Triangle, error) {
	if !r.headerRead {
		if _, err := r.ReadHeader(); err != nil {
			return nil, err
		}
	}

	var count uint32
	if err := binary.Read(r.r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: facet count: %v", ErrTruncated, err)
	}
	if count > maxFacets {
		return nil, fmt.Errorf("%w: facet count %d", ErrBadHeader, count)
	}

	capacity := int(count)
	if capacity > 1<<20 {
		capacity = 1 << 20
	}
	tris := make([]surface.Triangle, 0, capacity)

	var buf [facetSize]byte
	for i := uint32(0); i < count; i++ {
		if c != nil && i%(1<<14) == 0 && c.ShouldQuit() {
			return nil, task.ErrInterrupted
		}
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: facet %d of %d: %v", ErrTruncated, i, count, err)
		}
		var tri surface.Triangle
		for v := 0; v < 3; v++ {
			off := 12 + v*12
			tri[v] = model.Vec3{
				X: float64(readFloat(buf[off:])),
				Y: float64(readFloat(buf[off+4:])),
				Z: float64(readFloat(buf[off+8:])),
			}
			if !finite(tri[v]) {
				return nil, fmt.Errorf("%w: facet %d", ErrBadFacet, i)
			}
		}
		tris = append(tris, tri)
	}
	return tris, nil
}

func readFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func finite(v model.Vec3) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// FormatHeader renders h into the fixed-size header.
func FormatHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	text := magic + " " + hashField + string(h.Hash)
	if name := strings.Join(strings.Fields(h.Name), "_"); name != "" {
		text += " name=" + name
	}
	copy(buf[:], text)
	return buf
}

// Write encodes a complete record.
func Write(w io.Writer, h Header, tris []surface.Triangle) error {
	bw := bufio.NewWriterSize(w, 64*1024)

	header := FormatHeader(h)
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(tris))); err != nil {
		return fmt.Errorf("writing facet count: %w", err)
	}

	var buf [facetSize]byte
	for _, tri := range tris {
		n := tri.Normal()
		putVec(buf[0:], n)
		putVec(buf[12:], tri[0])
		putVec(buf[24:], tri[1])
		putVec(buf[36:], tri[2])
		buf[48], buf[49] = 0, 0
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("writing facet: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing record: %w", err)
	}
	return nil
}

func putVec(b []byte, v model.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}
