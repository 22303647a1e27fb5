// Package builder writes complete index directories: segment files, the
// manifest and tombstone files. It backs test fixtures and the shardgen
// sample generator; the reader itself never writes.
package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/tokenizer"
)

// Segment describes one segment to write. Deleted holds local ids to
// tombstone.
type Segment struct {
	Name    string
	Docs    []segment.Document
	Deleted []uint32
}

type Options struct {
	Codec      segment.Codec
	Generation uint64
}

// Build writes segs into dir in order and publishes the manifest last, so a
// reader never sees a manifest naming a half-written segment.
func Build(dir string, segs []Segment, opts Options) (store.Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return store.Manifest{}, fmt.Errorf("creating index directory: %w", err)
	}
	w := segment.NewWriter(dir, opts.Codec)
	m := store.Manifest{
		Version:    store.ManifestVersion,
		Generation: opts.Generation,
		Segments:   make([]store.SegmentMeta, 0, len(segs)),
	}
	for _, s := range segs {
		if _, err := w.Write(s.Name, s.Docs); err != nil {
			return store.Manifest{}, fmt.Errorf("writing segment %s: %w", s.Name, err)
		}
		if len(s.Deleted) > 0 {
			for _, id := range s.Deleted {
				if int(id) >= len(s.Docs) {
					return store.Manifest{}, fmt.Errorf("segment %s: tombstone %d beyond %d docs", s.Name, id, len(s.Docs))
				}
			}
			if err := store.WriteTombstones(dir, s.Name, s.Deleted); err != nil {
				return store.Manifest{}, err
			}
		}
		m.Segments = append(m.Segments, store.SegmentMeta{Name: s.Name, DocCount: uint32(len(s.Docs))})
	}
	if err := store.WriteManifest(dir, m); err != nil {
		return store.Manifest{}, err
	}
	return m, nil
}

// FromJSON turns a JSON object payload into a Document. String fields are
// tokenized; numbers and booleans are indexed as a single token of their
// JSON text. Nested objects, arrays and nulls are stored but not indexed.
func FromJSON(payload []byte) (segment.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return segment.Document{}, fmt.Errorf("decoding document: %w", err)
	}
	doc := segment.Document{
		Payload: payload,
		Fields:  make(map[string][]string, len(fields)),
	}
	for name, v := range fields {
		switch val := v.(type) {
		case string:
			if terms := tokenizer.Terms(val); len(terms) > 0 {
				doc.Fields[name] = terms
			}
		case float64:
			doc.Fields[name] = []string{strconv.FormatFloat(val, 'f', -1, 64)}
		case bool:
			doc.Fields[name] = []string{strconv.FormatBool(val)}
		}
	}
	return doc, nil
}

// FromValues marshals fields as the payload and indexes them like FromJSON.
func FromValues(fields map[string]any) (segment.Document, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return segment.Document{}, fmt.Errorf("encoding document: %w", err)
	}
	return FromJSON(payload)
}
