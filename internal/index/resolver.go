// Package index resolves terms to postings lists across the segments of an
// opened index, translating segment-local ids into the global id space.
package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/catalog"
)

type Resolver struct {
	catalog *catalog.Catalog
}

func NewResolver(c *catalog.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve returns the postings of term across all segments. An absent term
// yields an empty list and no error.
func (r *Resolver) Resolve(term Term) (PostingList, error) {
	var result PostingList
	for _, seg := range r.catalog.Segments() {
		entry, ok := seg.Lookup(term.Field, term.Value)
		if !ok {
			continue
		}
		postings, err := seg.Postings(entry)
		if err != nil {
			return nil, fmt.Errorf("resolving %s in segment %s: %w", term, seg.Name(), err)
		}
		if result == nil {
			result = make(PostingList, 0, len(postings))
		}
		for _, p := range postings {
			result = append(result, Posting{
				DocID:     seg.Base + int(p.DocID),
				Frequency: p.Freq,
			})
		}
	}
	// Segments are visited in Base order and local ids ascend, so result
	// is already sorted.
	return result, nil
}

// DocFreq returns the number of documents whose postings contain term,
// tombstoned documents included.
func (r *Resolver) DocFreq(term Term) int {
	total := 0
	for _, seg := range r.catalog.Segments() {
		if entry, ok := seg.Lookup(term.Field, term.Value); ok {
			total += entry.DocFreq
		}
	}
	return total
}
