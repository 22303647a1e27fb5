package shard

import "fmt"

// Iterator walks live documents lazily in ascending id order. It holds no
// lock between calls; closing the reader mid-iteration makes the next call
// to Next fail with ErrReaderClosed.
type Iterator struct {
	r       *Reader
	next    int
	id      int
	payload []byte
	err     error
}

// Iterator returns an iterator positioned before the first live document.
func (r *Reader) Iterator() *Iterator {
	return &Iterator{r: r, id: -1}
}

// Next advances to the next live document. It returns false when the
// documents are exhausted or an error occurred; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.r.mu.RLock()
	defer it.r.mu.RUnlock()
	if err := it.r.checkOpen(); err != nil {
		it.err = err
		return false
	}
	cat := it.r.catalog
	for ; it.next < cat.MaxDoc(); it.next++ {
		if !cat.IsLive(it.next) {
			continue
		}
		p, err := cat.Payload(it.next)
		if err != nil {
			it.err = fmt.Errorf("iterating doc %d: %w", it.next, err)
			return false
		}
		it.id, it.payload = it.next, p
		it.next++
		return true
	}
	it.id, it.payload = -1, nil
	return false
}

// DocID is the id of the current document, or -1 before the first Next.
func (it *Iterator) DocID() int { return it.id }

func (it *Iterator) Payload() []byte { return it.payload }

// Err returns the first error hit by Next. Exhaustion is not an error.
func (it *Iterator) Err() error {
	return it.err
}

// Collect drains the remaining documents into a slice.
func (it *Iterator) Collect() ([][]byte, error) {
	var out [][]byte
	for it.Next() {
		out = append(out, it.payload)
	}
	return out, it.err
}
