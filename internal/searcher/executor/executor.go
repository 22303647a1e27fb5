// Package executor scores a postings list and keeps the top-k live hits.
package executor

import (
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/index"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/searcher/ranker"
)

// Liveness reports whether a document may appear in results.
type Liveness interface {
	IsLive(id int) bool
}

// Result is the outcome of one executed term query.
type Result struct {
	Hits []ranker.ScoredDoc
	// Matched counts live documents in the postings list, before the k cut.
	Matched int
	// Skipped counts postings dropped because their document is tombstoned.
	Skipped int
}

// Execute scans postings once, skips documents that are not live and
// returns at most k hits in descending score order, ties broken by
// ascending document id. A k of zero or less means DefaultK.
func Execute(postings index.PostingList, live Liveness, k int) Result {
	top := NewTopK(k, len(postings))
	var res Result
	for _, p := range postings {
		if !live.IsLive(p.DocID) {
			res.Skipped++
			continue
		}
		res.Matched++
		top.Collect(ranker.ScoredDoc{
			DocID: p.DocID,
			Score: ranker.Score(p.Frequency),
		})
	}
	res.Hits = top.Results()
	return res
}
