// Package store opens a directory-backed index read-only: it loads the
// manifest, owns the segment file handles (memory-mapped when enabled) and
// the per-segment tombstone bitmaps, and serves byte-range reads keyed by
// FileID.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// FileID identifies a segment file by its position in the manifest.
type FileID int

// Options controls how segment files are accessed.
type Options struct {
	MMap bool
}

// SegmentInfo is the per-segment view exposed to the catalog and resolver.
type SegmentInfo struct {
	ID         FileID
	Name       string
	DocCount   uint32
	Tombstones *roaring.Bitmap
}

// Store owns every open file of one index. It is not shared between
// readers; opening the same path twice yields independent stores.
type Store struct {
	dir        string
	manifest   Manifest
	files      []*File
	tombstones []*roaring.Bitmap
	closed     bool
}

// Open validates dir and opens its segments. It fails with ErrNotFound when
// the path is absent and ErrCorruptIndex when the layout is not recognized.
func Open(dir string, opts Options) (*Store, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", pkgerrors.ErrNotFound, dir)
		}
		return nil, pkgerrors.Unavailable("stat index directory", err)
	}
	if !stat.IsDir() {
		return nil, pkgerrors.Corruptf("%s is not a directory", dir)
	}
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:        dir,
		manifest:   manifest,
		files:      make([]*File, 0, len(manifest.Segments)),
		tombstones: make([]*roaring.Bitmap, 0, len(manifest.Segments)),
	}
	for _, meta := range manifest.Segments {
		path := filepath.Join(dir, meta.Name+segment.FileExt)
		f, err := openFile(path, meta.Name, opts.MMap)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, f)
		bm, err := readTombstones(dir, meta)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.tombstones = append(s.tombstones, bm)
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Manifest() Manifest { return s.manifest }

// Generation returns the manifest generation; it changes whenever the index
// is rewritten, so it keys caches of query results.
func (s *Store) Generation() uint64 { return s.manifest.Generation }

// Segments returns the segments in id-space order.
func (s *Store) Segments() []SegmentInfo {
	out := make([]SegmentInfo, len(s.manifest.Segments))
	for i, meta := range s.manifest.Segments {
		out[i] = SegmentInfo{
			ID:         FileID(i),
			Name:       meta.Name,
			DocCount:   meta.DocCount,
			Tombstones: s.tombstones[i],
		}
	}
	return out
}

// File returns the segment file with the given id.
func (s *Store) File(id FileID) (*File, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", pkgerrors.ErrIndexUnavailable)
	}
	if id < 0 || int(id) >= len(s.files) {
		return nil, fmt.Errorf("%w: unknown file id %d", pkgerrors.ErrIndexUnavailable, id)
	}
	return s.files[id], nil
}

// ReadAt returns n bytes at off of the file id.
func (s *Store) ReadAt(id FileID, off int64, n int) ([]byte, error) {
	f, err := s.File(id)
	if err != nil {
		return nil, err
	}
	return f.Bytes(off, n)
}

// Size returns the size in bytes of file id, or -1 if unknown.
func (s *Store) Size(id FileID) int64 {
	f, err := s.File(id)
	if err != nil {
		return -1
	}
	return f.Size()
}

// Close releases every mapping and file handle. It is idempotent.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, f := range s.files {
		if err := f.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return pkgerrors.Join(errs...)
}
