package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

func buildIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := func(names ...string) []segment.Document {
		out := make([]segment.Document, 0, len(names))
		for _, n := range names {
			d, err := builder.FromValues(map[string]any{"name": n})
			require.NoError(t, err)
			out = append(out, d)
		}
		return out
	}
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "seg-0", Docs: docs("lorem", "ipsum")},
		{Name: "seg-1", Docs: docs("magnam", "dolor", "sit"), Deleted: []uint32{1}},
	}, builder.Options{Generation: 7})
	require.NoError(t, err)
	return dir
}

func TestOpen(t *testing.T) {
	for _, mmap := range []bool{false, true} {
		st, err := store.Open(buildIndex(t), store.Options{MMap: mmap})
		require.NoError(t, err)

		assert.Equal(t, uint64(7), st.Generation())
		assert.Equal(t, 5, st.Manifest().MaxDoc())

		segs := st.Segments()
		require.Len(t, segs, 2)
		assert.Equal(t, "seg-0", segs[0].Name)
		assert.True(t, segs[0].Tombstones.IsEmpty())
		assert.Equal(t, uint32(3), segs[1].DocCount)
		assert.True(t, segs[1].Tombstones.Contains(1))
		assert.Equal(t, uint64(1), segs[1].Tombstones.GetCardinality())

		magic, err := st.ReadAt(segs[0].ID, 0, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x58, 0x44, 0x50, 0x53}, magic)
		assert.Greater(t, st.Size(segs[0].ID), int64(segment.HeaderSize))

		require.NoError(t, st.Close())
		require.NoError(t, st.Close())
		_, err = st.ReadAt(segs[0].ID, 0, 4)
		assert.ErrorIs(t, err, pkgerrors.ErrIndexUnavailable)
	}
}

func TestOpenEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	_, err := builder.Build(dir, nil, builder.Options{})
	require.NoError(t, err)

	st, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, dir, st.Dir())
	assert.Empty(t, st.Segments())
	assert.Equal(t, 0, st.Manifest().MaxDoc())
}

func TestOpenMissingPath(t *testing.T) {
	_, err := store.Open(filepath.Join(t.TempDir(), "nope"), store.Options{})
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestOpenUnrecognizedLayout(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
		},
		{
			name: "regular file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "index")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
				return path
			},
		},
		{
			name: "garbage manifest",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, store.ManifestFile), []byte("{"), 0644))
				return dir
			},
		},
		{
			name: "wrong manifest version",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, store.ManifestFile), []byte(`{"version":9}`), 0644))
				return dir
			},
		},
		{
			name: "segment file missing",
			setup: func(t *testing.T) string {
				dir := buildIndex(t)
				require.NoError(t, os.Remove(filepath.Join(dir, "seg-1"+segment.FileExt)))
				return dir
			},
		},
		{
			name: "path traversal in segment name",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				m := `{"version":1,"segments":[{"name":"../x","doc_count":1}]}`
				require.NoError(t, os.WriteFile(filepath.Join(dir, store.ManifestFile), []byte(m), 0644))
				return dir
			},
		},
		{
			name: "garbage tombstones",
			setup: func(t *testing.T) string {
				dir := buildIndex(t)
				require.NoError(t, os.WriteFile(filepath.Join(dir, "seg-0"+store.TombstoneExt), []byte("nope"), 0644))
				return dir
			},
		},
		{
			name: "tombstone beyond doc count",
			setup: func(t *testing.T) string {
				dir := buildIndex(t)
				require.NoError(t, store.WriteTombstones(dir, "seg-0", []uint32{2}))
				return dir
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Open(tt.setup(t), store.Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgerrors.ErrCorruptIndex)
		})
	}
}
