package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// readTombstones loads <name>.del if present. A missing file means no
// deletions and yields an empty bitmap.
func readTombstones(dir string, meta SegmentMeta) (*roaring.Bitmap, error) {
	path := filepath.Join(dir, meta.Name+TombstoneExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return roaring.New(), nil
		}
		return nil, pkgerrors.Unavailable("reading tombstones", err)
	}
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, pkgerrors.Corruptf("%s: parsing tombstones: %v", path, err)
	}
	if !bm.IsEmpty() && bm.Maximum() >= meta.DocCount {
		return nil, pkgerrors.Corruptf("%s: tombstone %d beyond doc count %d", path, bm.Maximum(), meta.DocCount)
	}
	return bm, nil
}

// WriteTombstones marks the given local ids of segment name as deleted.
func WriteTombstones(dir, name string, localIDs []uint32) error {
	bm := roaring.BitmapOf(localIDs...)
	bm.RunOptimize()
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return fmt.Errorf("serializing tombstones: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, name+TombstoneExt), buf.Bytes())
}
