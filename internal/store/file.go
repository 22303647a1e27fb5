package store

import (
	"fmt"
	"os"
	"sync"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// File is one read-only segment file. When mapped, Bytes returns slices of
// the mapping; otherwise it reads through ReadAt into fresh buffers.
type File struct {
	name string
	path string
	file *os.File
	data []byte
	size int64

	mu     sync.RWMutex
	closed bool
}

func openFile(path, name string, useMmap bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.Corruptf("segment file %s listed in manifest but missing", path)
		}
		return nil, pkgerrors.Unavailable("opening segment file", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, pkgerrors.Unavailable("stat segment file", err)
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, pkgerrors.Corruptf("segment %s is not a regular file", path)
	}
	sf := &File{name: name, path: path, file: f, size: stat.Size()}
	if useMmap && sf.size > 0 {
		// Fall back to ReadAt if the mapping cannot be established.
		if mapped, err := mmapFile(f, sf.size); err == nil {
			sf.data = mapped
		}
	}
	return sf, nil
}

func (f *File) Name() string { return f.name }

func (f *File) Size() int64 { return f.size }

// Mapped reports whether reads are served from a memory mapping.
func (f *File) Mapped() bool { return f.data != nil }

// Bytes returns n bytes starting at off.
func (f *File) Bytes(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > f.size || int64(n) > f.size-off {
		return nil, pkgerrors.Corruptf("read [%d,+%d) outside %s (%d bytes)", off, n, f.name, f.size)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, pkgerrors.Unavailable("reading "+f.name, os.ErrClosed)
	}
	if n == 0 {
		return []byte{}, nil
	}
	if f.data != nil {
		return f.data[off : off+int64(n)], nil
	}
	buf := make([]byte, n)
	if _, err := f.file.ReadAt(buf, off); err != nil {
		return nil, pkgerrors.Unavailable("reading "+f.name, err)
	}
	return buf, nil
}

func (f *File) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var errs []error
	if f.data != nil {
		if err := munmapFile(f.data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping %s: %w", f.name, err))
		}
		f.data = nil
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s: %w", f.name, err))
	}
	return pkgerrors.Join(errs...)
}
