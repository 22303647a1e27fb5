package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/index"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
)

func textDocs(t *testing.T, bodies ...string) []segment.Document {
	t.Helper()
	out := make([]segment.Document, 0, len(bodies))
	for _, b := range bodies {
		d, err := builder.FromValues(map[string]any{"body": b})
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func newResolver(t *testing.T) *index.Resolver {
	t.Helper()
	dir := t.TempDir()
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "a", Docs: textDocs(t, "lorem ipsum", "magnam magnam magnam", "dolor")},
		{Name: "b", Docs: textDocs(t, "magnam est", "sit amet"), Deleted: []uint32{0}},
		{Name: "c", Docs: textDocs(t, "Magnam")},
	}, builder.Options{})
	require.NoError(t, err)

	st, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	c, err := catalog.Open(st)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return index.NewResolver(c)
}

func TestResolve(t *testing.T) {
	r := newResolver(t)

	list, err := r.Resolve(index.Term{Field: "body", Value: "magnam"})
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{
		{DocID: 1, Frequency: 3},
		{DocID: 3, Frequency: 1},
		{DocID: 5, Frequency: 1},
	}, list)

	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].DocID, list[i].DocID)
	}
}

func TestResolveAbsentTerm(t *testing.T) {
	r := newResolver(t)

	tests := []index.Term{
		{Field: "body", Value: "nequeporro"},
		{Field: "title", Value: "magnam"},
		{Field: "body", Value: "Magnam"},
	}
	for _, term := range tests {
		t.Run(term.String(), func(t *testing.T) {
			list, err := r.Resolve(term)
			require.NoError(t, err)
			assert.Empty(t, list)
			assert.Equal(t, 0, r.DocFreq(term))
		})
	}
}

func TestDocFreqCountsTombstoned(t *testing.T) {
	r := newResolver(t)
	assert.Equal(t, 3, r.DocFreq(index.Term{Field: "body", Value: "magnam"}))
	assert.Equal(t, 1, r.DocFreq(index.Term{Field: "body", Value: "est"}))
}
