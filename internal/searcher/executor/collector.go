package executor

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/searcher/ranker"
)

// DefaultK bounds a query when the caller gives no explicit limit.
const DefaultK = 10

// TopK keeps the k best hits seen so far. The heap root is the worst kept
// hit, so a new hit only enters when it ranks ahead of the root.
type TopK struct {
	k int
	h scoredDocHeap
}

// NewTopK keeps at most k hits. expected is how many hits the caller may
// offer; it only sizes the initial allocation, so an oversized k costs
// nothing until that many hits arrive.
func NewTopK(k, expected int) *TopK {
	if k <= 0 {
		k = DefaultK
	}
	return &TopK{k: k, h: make(scoredDocHeap, 0, max(0, min(k, expected)))}
}

func (t *TopK) Collect(doc ranker.ScoredDoc) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, doc)
		return
	}
	if ranker.Before(doc, t.h[0]) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

func (t *TopK) Len() int { return t.h.Len() }

// Results drains the collector, best hit first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

// Less puts the worst-ranked hit at the root.
func (h scoredDocHeap) Less(i, j int) bool {
	return ranker.Before(h[j], h[i])
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
