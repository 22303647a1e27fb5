// Package ranker holds the scoring function for single-term queries and the
// ordering every ranked result list follows.
package ranker

import "math"

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Score is sqrt(termFrequency). It depends on term frequency alone: with a
// single resolved term there is nothing for IDF or length norms to weigh.
func Score(termFreq uint32) float64 {
	return math.Sqrt(float64(termFreq))
}

// Before reports whether a ranks ahead of b: higher score first, then lower
// document id.
func Before(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
