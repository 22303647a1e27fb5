// Package catalog maps the dense global document id space onto the segments
// of an index: liveness from tombstones, and stored-payload retrieval.
package catalog

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// Segment is an opened segment placed in the global id space at Base.
type Segment struct {
	*segment.Segment
	Base    int
	Deleted *roaring.Bitmap
}

// Catalog is immutable once built; the id space is never compacted during
// its lifetime.
type Catalog struct {
	segs    []Segment
	maxDoc  int
	numLive int
}

// Open decodes every segment of st. The manifest doc count of each segment
// must agree with the segment header.
func Open(st *store.Store) (*Catalog, error) {
	infos := st.Segments()
	c := &Catalog{segs: make([]Segment, 0, len(infos))}
	for _, info := range infos {
		f, err := st.File(info.ID)
		if err != nil {
			c.Close()
			return nil, err
		}
		seg, err := segment.Open(f)
		if err != nil {
			c.Close()
			return nil, err
		}
		if seg.DocCount() != info.DocCount {
			seg.Close()
			c.Close()
			return nil, pkgerrors.Corruptf("segment %s: manifest says %d docs, header says %d",
				info.Name, info.DocCount, seg.DocCount())
		}
		c.segs = append(c.segs, Segment{Segment: seg, Base: c.maxDoc, Deleted: info.Tombstones})
		c.maxDoc += int(info.DocCount)
		c.numLive += int(info.DocCount) - int(info.Tombstones.GetCardinality())
	}
	return c, nil
}

// Segments returns the segments in ascending Base order.
func (c *Catalog) Segments() []Segment {
	return c.segs
}

// MaxDoc is the size of the id space, tombstones included.
func (c *Catalog) MaxDoc() int {
	return c.maxDoc
}

// NumLive is the number of documents that are not tombstoned.
func (c *Catalog) NumLive() int {
	return c.numLive
}

func (c *Catalog) locate(id int) (Segment, uint32, bool) {
	if id < 0 || id >= c.maxDoc {
		return Segment{}, 0, false
	}
	i := sort.Search(len(c.segs), func(i int) bool {
		return c.segs[i].Base+int(c.segs[i].DocCount()) > id
	})
	s := c.segs[i]
	return s, uint32(id - s.Base), true
}

// IsLive reports whether id is in range and not tombstoned.
func (c *Catalog) IsLive(id int) bool {
	s, local, ok := c.locate(id)
	if !ok {
		return false
	}
	return !s.Deleted.Contains(local)
}

// Payload returns the stored payload of id without checking liveness.
// Ids outside [0, MaxDoc) fail with ErrDocumentNotFound.
func (c *Catalog) Payload(id int) ([]byte, error) {
	s, local, ok := c.locate(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d outside [0, %d)", pkgerrors.ErrDocumentNotFound, id, c.maxDoc)
	}
	return s.Payload(local)
}

// ForEachLive calls fn for every live document in ascending id order and
// stops at the first error.
func (c *Catalog) ForEachLive(fn func(id int, payload []byte) error) error {
	for _, s := range c.segs {
		for local := uint32(0); local < s.DocCount(); local++ {
			if s.Deleted.Contains(local) {
				continue
			}
			payload, err := s.Payload(local)
			if err != nil {
				return err
			}
			if err := fn(s.Base+int(local), payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases per-segment decoders. File handles belong to the store.
func (c *Catalog) Close() {
	for _, s := range c.segs {
		s.Segment.Close()
	}
}
