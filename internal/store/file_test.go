package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

func TestFileBytesRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg-0.spdx")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	for _, mmap := range []bool{false, true} {
		f, err := openFile(path, "seg-0", mmap)
		require.NoError(t, err)

		got, err := f.Bytes(2, 3)
		require.NoError(t, err)
		assert.Equal(t, "234", string(got))

		tests := []struct {
			name string
			off  int64
			n    int
		}{
			{"past end", 8, 3},
			{"negative offset", -1, 1},
			{"negative length", 0, -1},
			{"offset beyond size", 11, 0},
			{"length overflows", 5, math.MaxInt},
			{"offset overflows", math.MaxInt64 - 2, 5},
		}
		for _, tt := range tests {
			_, err := f.Bytes(tt.off, tt.n)
			assert.ErrorIs(t, err, pkgerrors.ErrCorruptIndex, "mmap=%v %s", mmap, tt.name)
		}
		require.NoError(t, f.close())
	}
}
