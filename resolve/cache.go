package resolve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"

	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/stl"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// RecordExt is the extension of a cache record.
const RecordExt = ".stl"

// CompressedSuffix is appended to a record path for its bzip2 variant.
const CompressedSuffix = ".bz2"

// CachePath returns the plain cache record path for a description file:
// the same path with its extension replaced by RecordExt.
func CachePath(description string) string {
	ext := filepath.Ext(description)
	return strings.TrimSuffix(description, ext) + RecordExt
}

// isFile reports whether path names an existing regular file.
func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SelectRecord picks the record to read for a description file. The
// compressed variant wins whenever it exists.
func SelectRecord(description string) (path string, compressed bool, ok bool) {
	plain := CachePath(description)
	packed := plain + CompressedSuffix
	hasPlain, hasPacked := isFile(plain), isFile(packed)
	switch {
	case hasPacked:
		return packed, true, true
	case hasPlain:
		return plain, false, true
	default:
		return "", false, false
	}
}

// readRecord reads the record at path if its header hash equals want.
// The body is not touched on a mismatch.
func readRecord(c task.Canceller, path string, compressed bool, want model.Hash) ([]surface.Triangle, LookupOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LookupUnreadable, err
	}
	defer f.Close()

	var src io.Reader = f
	if compressed {
		zr, err := bzip2.NewReader(f, nil)
		if err != nil {
			return nil, LookupUnreadable, fmt.Errorf("opening bzip2 stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	r := stl.NewReader(src)
	h, err := r.ReadHeader()
	if err != nil {
		return nil, LookupCorrupt, err
	}
	if h.Hash != want {
		return nil, LookupStale, fmt.Errorf("record hash %q does not match %q", h.Hash, want)
	}

	tris, err := r.ReadBody(c)
	switch {
	case errors.Is(err, task.ErrInterrupted):
		return nil, LookupInterrupted, err
	case err != nil:
		return nil, LookupCorrupt, err
	}
	return tris, LookupHit, nil
}

// WriteRecord stores tris as the cache record for a description file and
// returns the path written. The record is written to a temporary file and
// renamed into place. A plain write removes any compressed record, which
// would otherwise shadow it.
func WriteRecord(description string, hash model.Hash, tris []surface.Triangle, compress bool) (string, error) {
	path := CachePath(description)
	if compress {
		path += CompressedSuffix
	}
	header := stl.Header{Name: filepath.Base(description), Hash: hash}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("creating cache record: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := encodeRecord(tmp, header, tris, compress); err != nil {
		return "", fmt.Errorf("writing cache record: %w", err)
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing cache record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("committing cache record: %w", err)
	}
	if !compress {
		if err := os.Remove(path + CompressedSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return path, fmt.Errorf("removing shadowing record: %w", err)
		}
	}
	return path, nil
}

func encodeRecord(w io.Writer, h stl.Header, tris []surface.Triangle, compress bool) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	if !compress {
		if err := stl.Write(bw, h, tris); err != nil {
			return err
		}
		return bw.Flush()
	}

	zw, err := bzip2.NewWriter(bw, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return err
	}
	if err := stl.Write(zw, h, tris); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}
