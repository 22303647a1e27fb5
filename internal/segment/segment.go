// Package segment decodes .spdx segment files: a fixed header, delta-encoded
// postings, a stored-payload section with a per-document offset table, a JSON
// term dictionary and a footer that is cross-checked against the header.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"sort"

	"github.com/klauspost/compress/zstd"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// Source is the byte-range view of one segment file.
type Source interface {
	Name() string
	Size() int64
	// Bytes returns n bytes starting at off. The slice may alias a memory
	// mapping and must not be retained past the source's lifetime.
	Bytes(off int64, n int) ([]byte, error)
}

// Segment is an opened, validated segment.
type Segment struct {
	src     Source
	header  Header
	dict    []DictEntry
	offsets []uint64
	dataOff int64
	dec     *zstd.Decoder
}

// Open validates the segment behind src and loads its dictionary and stored
// offset table. Structural problems are reported as ErrCorruptIndex.
func Open(src Source) (*Segment, error) {
	name := src.Name()
	size := src.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, pkgerrors.Corruptf("segment %s: file too small (%d bytes)", name, size)
	}
	headerBytes, err := src.Bytes(0, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("reading segment header %s: %w", name, err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, pkgerrors.Corruptf("segment %s: bad magic bytes %x", name, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, pkgerrors.Corruptf("segment %s: unsupported format version %d", name, header.Version)
	}
	if header.Codec != CodecNone && header.Codec != CodecZstd {
		return nil, pkgerrors.Corruptf("segment %s: unknown stored codec %d", name, header.Codec)
	}

	footerBytes, err := src.Bytes(size-int64(FooterSize), FooterSize)
	if err != nil {
		return nil, fmt.Errorf("reading segment footer %s: %w", name, err)
	}
	ft := decodeFooter(footerBytes)
	if ft.DictChecksum != header.DictChecksum ||
		ft.DocCount != header.DocCount ||
		ft.DictOffset != header.DictOffset ||
		ft.DictSize != header.DictSize ||
		ft.PostSize != header.PostSize {
		return nil, pkgerrors.Corruptf("segment %s: footer does not match header", name)
	}

	body := size - int64(FooterSize)
	for _, sec := range []struct {
		what      string
		off, size int64
	}{
		{"postings", header.PostOffset, header.PostSize},
		{"stored", header.StoredOffset, header.StoredSize},
		{"dictionary", header.DictOffset, header.DictSize},
	} {
		if sec.off < int64(HeaderSize) || sec.off > body || sec.size < 0 || sec.size > body-sec.off {
			return nil, pkgerrors.Corruptf("segment %s: %s section [%d,+%d) out of bounds", name, sec.what, sec.off, sec.size)
		}
	}

	dictBytes, err := src.Bytes(header.DictOffset, int(header.DictSize))
	if err != nil {
		return nil, fmt.Errorf("reading dictionary %s: %w", name, err)
	}
	if crc32.ChecksumIEEE(dictBytes) != header.DictChecksum {
		return nil, pkgerrors.Corruptf("segment %s: dictionary checksum mismatch", name)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, pkgerrors.Corruptf("segment %s: parsing dictionary: %v", name, err)
	}
	if uint32(len(dict)) != header.TermCount {
		return nil, pkgerrors.Corruptf("segment %s: dictionary holds %d terms, header says %d", name, len(dict), header.TermCount)
	}
	for i, e := range dict {
		if e.PostOffset < 0 || e.PostOffset > header.PostSize || e.PostLen <= 0 || int64(e.PostLen) > header.PostSize-e.PostOffset {
			return nil, pkgerrors.Corruptf("segment %s: postings for %s:%q out of bounds", name, e.Field, e.Term)
		}
		if e.DocFreq <= 0 || int64(e.DocFreq) > int64(header.DocCount) {
			return nil, pkgerrors.Corruptf("segment %s: %s:%q has doc freq %d for %d docs", name, e.Field, e.Term, e.DocFreq, header.DocCount)
		}
		if i > 0 && compareKey(dict[i-1], e.Field, e.Term) >= 0 {
			return nil, pkgerrors.Corruptf("segment %s: dictionary not sorted at %s:%q", name, e.Field, e.Term)
		}
	}

	tableSize := (int64(header.DocCount) + 1) * 8
	if header.StoredSize < tableSize {
		return nil, pkgerrors.Corruptf("segment %s: stored section too small for %d docs", name, header.DocCount)
	}
	table, err := src.Bytes(header.StoredOffset, int(tableSize))
	if err != nil {
		return nil, fmt.Errorf("reading stored offsets %s: %w", name, err)
	}
	offsets := make([]uint64, header.DocCount+1)
	dataSize := uint64(header.StoredSize - tableSize)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(table[i*8:])
		if offsets[i] > dataSize || (i > 0 && offsets[i] < offsets[i-1]) {
			return nil, pkgerrors.Corruptf("segment %s: stored offset %d invalid", name, i)
		}
	}

	seg := &Segment{
		src:     src,
		header:  header,
		dict:    dict,
		offsets: offsets,
		dataOff: header.StoredOffset + tableSize,
	}
	if header.Codec == CodecZstd {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		seg.dec = dec
	}
	return seg, nil
}

// Lookup finds the dictionary entry for (field, term).
func (s *Segment) Lookup(field, term string) (DictEntry, bool) {
	idx := sort.Search(len(s.dict), func(i int) bool {
		return compareKey(s.dict[i], field, term) >= 0
	})
	if idx >= len(s.dict) || s.dict[idx].Field != field || s.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return s.dict[idx], true
}

// Postings decodes the postings list for entry. Doc ids are local to the
// segment and strictly ascending.
func (s *Segment) Postings(entry DictEntry) ([]Posting, error) {
	data, err := s.src.Bytes(s.header.PostOffset+entry.PostOffset, entry.PostLen)
	if err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	if entry.DocFreq < 0 || int64(entry.DocFreq) > int64(s.header.DocCount) {
		return nil, pkgerrors.Corruptf("segment %s: %s:%q has doc freq %d for %d docs",
			s.src.Name(), entry.Field, entry.Term, entry.DocFreq, s.header.DocCount)
	}
	postings := make([]Posting, 0, entry.DocFreq)
	var doc uint64
	for pos := 0; pos < len(data); {
		delta, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, pkgerrors.Corruptf("segment %s: bad doc delta in %s:%q", s.src.Name(), entry.Field, entry.Term)
		}
		pos += n
		freq, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, pkgerrors.Corruptf("segment %s: bad frequency in %s:%q", s.src.Name(), entry.Field, entry.Term)
		}
		pos += n
		if freq == 0 || freq > math.MaxUint32 {
			return nil, pkgerrors.Corruptf("segment %s: frequency %d out of range in %s:%q", s.src.Name(), freq, entry.Field, entry.Term)
		}
		if len(postings) > 0 && delta == 0 {
			return nil, pkgerrors.Corruptf("segment %s: duplicate doc in %s:%q", s.src.Name(), entry.Field, entry.Term)
		}
		doc += delta
		if doc >= uint64(s.header.DocCount) {
			return nil, pkgerrors.Corruptf("segment %s: doc %d out of range in %s:%q", s.src.Name(), doc, entry.Field, entry.Term)
		}
		postings = append(postings, Posting{DocID: uint32(doc), Freq: uint32(freq)})
	}
	if len(postings) != entry.DocFreq {
		return nil, pkgerrors.Corruptf("segment %s: %s:%q has %d postings, dictionary says %d",
			s.src.Name(), entry.Field, entry.Term, len(postings), entry.DocFreq)
	}
	return postings, nil
}

// Payload returns a copy of the stored payload of a local document.
func (s *Segment) Payload(local uint32) ([]byte, error) {
	if local >= s.header.DocCount {
		return nil, fmt.Errorf("%w: local id %d in segment %s", pkgerrors.ErrDocumentNotFound, local, s.src.Name())
	}
	start, end := s.offsets[local], s.offsets[local+1]
	raw, err := s.src.Bytes(s.dataOff+int64(start), int(end-start))
	if err != nil {
		return nil, fmt.Errorf("reading payload %d: %w", local, err)
	}
	if len(raw) == 0 {
		return []byte{}, nil
	}
	if s.dec != nil {
		out, err := s.dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, pkgerrors.Corruptf("segment %s: decompressing payload %d: %v", s.src.Name(), local, err)
		}
		return out, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (s *Segment) Name() string {
	return s.src.Name()
}

func (s *Segment) DocCount() uint32 {
	return s.header.DocCount
}

func (s *Segment) Terms() int {
	return len(s.dict)
}

func (s *Segment) Header() Header {
	return s.header
}

// Close releases the decoder. The underlying source is owned by the store.
func (s *Segment) Close() {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
}
