package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
)

func TestFromJSON(t *testing.T) {
	doc, err := FromJSON([]byte(`{"name":"Magnam est","n":3.5,"ok":false,"tags":["x"],"none":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"name": {"magnam", "est"},
		"n":    {"3.5"},
		"ok":   {"false"},
	}, doc.Fields)

	_, err = FromJSON([]byte(`[1]`))
	assert.Error(t, err)
}

func TestBuildWritesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	d, err := FromValues(map[string]any{"name": "lorem"})
	require.NoError(t, err)

	m, err := Build(dir, []Segment{
		{Name: "a", Docs: []segment.Document{d, d}, Deleted: []uint32{1}},
		{Name: "b", Docs: []segment.Document{d}},
	}, Options{Codec: segment.CodecZstd, Generation: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Generation)
	assert.Equal(t, 3, m.MaxDoc())

	for _, name := range []string{store.ManifestFile, "a.spdx", "a.del", "b.spdx"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, "b.del"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildRejectsOutOfRangeTombstone(t *testing.T) {
	d, err := FromValues(map[string]any{"name": "lorem"})
	require.NoError(t, err)
	_, err = Build(t.TempDir(), []Segment{{Name: "a", Docs: []segment.Document{d}, Deleted: []uint32{1}}}, Options{})
	assert.Error(t, err)
}
