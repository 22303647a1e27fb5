//go:build !unix

package store

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("mmap not supported on this platform")

func mmapFile(*os.File, int64) ([]byte, error) {
	return nil, errNoMmap
}

func munmapFile([]byte) error {
	return errNoMmap
}
