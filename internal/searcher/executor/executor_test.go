package executor

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/index"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/searcher/ranker"
)

type deletedSet map[int]bool

func (d deletedSet) IsLive(id int) bool { return !d[id] }

func TestExecuteOrdering(t *testing.T) {
	postings := index.PostingList{
		{DocID: 0, Frequency: 1},
		{DocID: 1, Frequency: 4},
		{DocID: 2, Frequency: 1},
		{DocID: 3, Frequency: 9},
		{DocID: 4, Frequency: 4},
	}
	res := Execute(postings, deletedSet{}, 10)

	require.Len(t, res.Hits, 5)
	assert.Equal(t, []int{3, 1, 4, 0, 2}, docIDs(res.Hits))
	assert.Equal(t, 3.0, res.Hits[0].Score)
	assert.Equal(t, 2.0, res.Hits[1].Score)
	assert.Equal(t, 1.0, res.Hits[4].Score)
	assert.Equal(t, 5, res.Matched)
	assert.Equal(t, 0, res.Skipped)
}

func TestExecuteBoundsAtK(t *testing.T) {
	postings := make(index.PostingList, 0, 50)
	for i := 0; i < 50; i++ {
		postings = append(postings, index.Posting{DocID: i, Frequency: uint32(i%5 + 1)})
	}

	tests := []struct {
		k    int
		want int
	}{
		{k: 1, want: 1},
		{k: 3, want: 3},
		{k: 0, want: DefaultK},
		{k: 50, want: 50},
		{k: 500, want: 50},
		{k: math.MaxInt, want: 50},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d", tt.k), func(t *testing.T) {
			res := Execute(postings, deletedSet{}, tt.k)
			require.Len(t, res.Hits, tt.want)
			for i := 1; i < len(res.Hits); i++ {
				assert.True(t, ranker.Before(res.Hits[i-1], res.Hits[i]))
			}
			// Top hits are the tf=5 docs in ascending id order.
			assert.Equal(t, 4, res.Hits[0].DocID)
		})
	}
}

func TestExecuteSkipsDeleted(t *testing.T) {
	postings := index.PostingList{
		{DocID: 0, Frequency: 1},
		{DocID: 2, Frequency: 7},
		{DocID: 5, Frequency: 2},
	}
	res := Execute(postings, deletedSet{2: true}, 10)
	assert.Equal(t, []int{5, 0}, docIDs(res.Hits))
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Skipped)
}

func TestExecuteEmpty(t *testing.T) {
	res := Execute(nil, deletedSet{}, 10)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
}

func TestTopKAllocatesForExpectedHits(t *testing.T) {
	top := NewTopK(math.MaxInt, 3)
	assert.Equal(t, 3, cap(top.h))
	for i := 0; i < 5; i++ {
		top.Collect(ranker.ScoredDoc{DocID: i, Score: 1})
	}
	assert.Equal(t, 5, top.Len())

	assert.Equal(t, 0, cap(NewTopK(math.MaxInt, 0).h))
	assert.Equal(t, DefaultK, NewTopK(0, 100).k)
}

func TestScoreMonotonic(t *testing.T) {
	assert.Equal(t, 1.0, ranker.Score(1))
	prev := 0.0
	for tf := uint32(1); tf < 100; tf++ {
		s := ranker.Score(tf)
		assert.Greater(t, s, prev)
		prev = s
	}
}

func docIDs(hits []ranker.ScoredDoc) []int {
	ids := make([]int, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	return ids
}

func BenchmarkExecute(b *testing.B) {
	for _, n := range []int{1000, 100000} {
		postings := make(index.PostingList, n)
		for i := range postings {
			postings[i] = index.Posting{DocID: i, Frequency: uint32(i%17 + 1)}
		}
		b.Run(fmt.Sprintf("postings_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Execute(postings, deletedSet{}, DefaultK)
			}
		})
	}
}
