package segment

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 96
	FooterSize    int    = 32
	FileExt              = ".spdx"
)

// Codec selects how stored payloads are encoded in the stored section.
type Codec uint32

const (
	CodecNone Codec = iota
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint32(c))
	}
}

// ParseCodec maps a config string to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown stored codec %q", s)
	}
}

// Header is the fixed-size header written at the start of every segment.
type Header struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	DictOffset   int64
	DictSize     int64
	PostOffset   int64
	PostSize     int64
	StoredOffset int64
	StoredSize   int64
	Codec        Codec
	DictChecksum uint32
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.StoredSize))
	binary.LittleEndian.PutUint32(b[72:76], uint32(h.Codec))
	binary.LittleEndian.PutUint32(b[76:80], h.DictChecksum)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[32:40])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[40:48])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[48:56])),
		StoredOffset: int64(binary.LittleEndian.Uint64(b[56:64])),
		StoredSize:   int64(binary.LittleEndian.Uint64(b[64:72])),
		Codec:        Codec(binary.LittleEndian.Uint32(b[72:76])),
		DictChecksum: binary.LittleEndian.Uint32(b[76:80]),
	}
}

// footer repeats the values a truncated or partially written file would get
// wrong, so a reader can cross-check them against the header.
type footer struct {
	DictChecksum uint32
	DocCount     uint32
	DictOffset   int64
	DictSize     int64
	PostSize     int64
}

func (f footer) encode() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], f.DictChecksum)
	binary.LittleEndian.PutUint32(b[4:8], f.DocCount)
	binary.LittleEndian.PutUint64(b[8:16], uint64(f.DictOffset))
	binary.LittleEndian.PutUint64(b[16:24], uint64(f.DictSize))
	binary.LittleEndian.PutUint64(b[24:32], uint64(f.PostSize))
	return b
}

func decodeFooter(b []byte) footer {
	return footer{
		DictChecksum: binary.LittleEndian.Uint32(b[0:4]),
		DocCount:     binary.LittleEndian.Uint32(b[4:8]),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[8:16])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[16:24])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[24:32])),
	}
}

// DictEntry maps a (field, term) pair to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// compareKey orders dictionary entries by field, then term.
func compareKey(e DictEntry, field, term string) int {
	if c := strings.Compare(e.Field, field); c != 0 {
		return c
	}
	return strings.Compare(e.Term, term)
}

// Posting is one (local document id, term frequency) pair.
type Posting struct {
	DocID uint32
	Freq  uint32
}
