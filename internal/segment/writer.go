package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Document is one document handed to the Writer. Fields maps a field name to
// the exact tokens indexed for it; a token repeated n times has term
// frequency n.
type Document struct {
	Payload []byte
	Fields  map[string][]string
}

// Writer serialises documents into .spdx segment files. It exists to build
// fixtures and sample shards; the reader never writes.
type Writer struct {
	dataDir string
	codec   Codec
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string, codec Codec) *Writer {
	return &Writer{dataDir: dataDir, codec: codec}
}

type termKey struct {
	field string
	term  string
}

// Write atomically creates <name>.spdx holding docs, whose local ids are
// their positions in the slice. It writes to a .tmp file first and renames
// on success.
func (w *Writer) Write(name string, docs []Document) (string, error) {
	finalPath := filepath.Join(w.dataDir, name+FileExt)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		DocCount:  uint32(len(docs)),
		CreatedAt: time.Now().Unix(),
		Codec:     w.codec,
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	terms := invert(docs)
	keys := make([]termKey, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].field != keys[j].field {
			return keys[i].field < keys[j].field
		}
		return keys[i].term < keys[j].term
	})

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(keys))
	for _, k := range keys {
		postings := terms[k]
		data := encodePostings(postings)
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing postings for %s:%q: %w", k.field, k.term, err)
		}
		dict = append(dict, DictEntry{
			Field:      k.field,
			Term:       k.term,
			PostOffset: offset - postingsStart,
			PostLen:    len(data),
			DocFreq:    len(postings),
		})
		offset += int64(len(data))
	}
	postingsSize := offset - postingsStart

	stored, err := w.encodeStored(docs)
	if err != nil {
		return "", err
	}
	storedStart := offset
	if _, err := f.Write(stored); err != nil {
		return "", fmt.Errorf("writing stored fields: %w", err)
	}
	offset += int64(len(stored))

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	dictStart := offset
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	checksum := crc32.ChecksumIEEE(dictData)

	ft := footer{
		DictChecksum: checksum,
		DocCount:     uint32(len(docs)),
		DictOffset:   dictStart,
		DictSize:     int64(len(dictData)),
		PostSize:     postingsSize,
	}
	if _, err := f.Write(ft.encode()); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	header.TermCount = uint32(len(dict))
	header.DictOffset = dictStart
	header.DictSize = int64(len(dictData))
	header.PostOffset = postingsStart
	header.PostSize = postingsSize
	header.StoredOffset = storedStart
	header.StoredSize = int64(len(stored))
	header.DictChecksum = checksum
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}

func invert(docs []Document) map[termKey][]Posting {
	terms := make(map[termKey][]Posting)
	for id, doc := range docs {
		for field, tokens := range doc.Fields {
			freqs := make(map[string]uint32, len(tokens))
			for _, tok := range tokens {
				freqs[tok]++
			}
			for tok, freq := range freqs {
				k := termKey{field: field, term: tok}
				terms[k] = append(terms[k], Posting{DocID: uint32(id), Freq: freq})
			}
		}
	}
	// docs are visited in id order, so each list is already ascending.
	return terms
}

// encodePostings writes uvarint(docDelta) uvarint(freq) pairs.
func encodePostings(postings []Posting) []byte {
	buf := make([]byte, 0, len(postings)*4)
	var prev uint32
	for i, p := range postings {
		delta := p.DocID
		if i > 0 {
			delta = p.DocID - prev
		}
		buf = binary.AppendUvarint(buf, uint64(delta))
		buf = binary.AppendUvarint(buf, uint64(p.Freq))
		prev = p.DocID
	}
	return buf
}

func (w *Writer) encodeStored(docs []Document) ([]byte, error) {
	var enc *zstd.Encoder
	if w.codec == CodecZstd {
		var err error
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		defer enc.Close()
	}
	table := make([]byte, (len(docs)+1)*8)
	data := make([]byte, 0)
	for i, doc := range docs {
		binary.LittleEndian.PutUint64(table[i*8:], uint64(len(data)))
		switch w.codec {
		case CodecZstd:
			data = enc.EncodeAll(doc.Payload, data)
		case CodecNone:
			data = append(data, doc.Payload...)
		default:
			return nil, fmt.Errorf("unsupported stored codec %s", w.codec)
		}
	}
	binary.LittleEndian.PutUint64(table[len(docs)*8:], uint64(len(data)))
	return append(table, data...), nil
}
