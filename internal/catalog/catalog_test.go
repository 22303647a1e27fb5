package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

func nameDocs(t *testing.T, names ...string) []segment.Document {
	t.Helper()
	out := make([]segment.Document, 0, len(names))
	for _, n := range names {
		d, err := builder.FromValues(map[string]any{"name": n})
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func openCatalog(t *testing.T, dir string) *catalog.Catalog {
	t.Helper()
	st, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	c, err := catalog.Open(st)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCatalogIDSpace(t *testing.T) {
	dir := t.TempDir()
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "a", Docs: nameDocs(t, "lorem", "ipsum")},
		{Name: "empty"},
		{Name: "b", Docs: nameDocs(t, "dolor", "sit", "amet"), Deleted: []uint32{0, 2}},
	}, builder.Options{Codec: segment.CodecZstd})
	require.NoError(t, err)

	c := openCatalog(t, dir)
	assert.Equal(t, 5, c.MaxDoc())
	assert.Equal(t, 3, c.NumLive())

	segs := c.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, []int{0, 2, 2}, []int{segs[0].Base, segs[1].Base, segs[2].Base})

	live := []bool{true, true, false, true, false}
	for id, want := range live {
		assert.Equal(t, want, c.IsLive(id), "doc %d", id)
	}
	assert.False(t, c.IsLive(-1))
	assert.False(t, c.IsLive(5))

	p, err := c.Payload(3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"sit"}`, string(p))

	// Tombstoned documents are still addressable at this layer.
	p, err = c.Payload(2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"dolor"}`, string(p))

	for _, id := range []int{-1, 5, 100} {
		_, err := c.Payload(id)
		assert.ErrorIs(t, err, pkgerrors.ErrDocumentNotFound, "id %d", id)
	}
}

func TestForEachLive(t *testing.T) {
	dir := t.TempDir()
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "a", Docs: nameDocs(t, "lorem", "ipsum"), Deleted: []uint32{0}},
		{Name: "b", Docs: nameDocs(t, "dolor", "sit")},
	}, builder.Options{})
	require.NoError(t, err)

	c := openCatalog(t, dir)
	var ids []int
	var names []string
	err = c.ForEachLive(func(id int, p []byte) error {
		ids = append(ids, id)
		names = append(names, string(p))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
	assert.Equal(t, []string{`{"name":"ipsum"}`, `{"name":"dolor"}`, `{"name":"sit"}`}, names)

	stop := assert.AnError
	calls := 0
	err = c.ForEachLive(func(int, []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestManifestDocCountMismatch(t *testing.T) {
	dir := t.TempDir()
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "a", Docs: nameDocs(t, "lorem")},
	}, builder.Options{})
	require.NoError(t, err)
	m := `{"version":1,"generation":0,"segments":[{"name":"a","doc_count":2}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.ManifestFile), []byte(m), 0644))

	st, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	defer st.Close()
	_, err = catalog.Open(st)
	assert.ErrorIs(t, err, pkgerrors.ErrCorruptIndex)
}
