// Package shard provides Reader, the long-lived handle over one index
// directory. A Reader is opened once, answers any number of queries and is
// closed explicitly; it owns its store exclusively.
package shard

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/index"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/payload"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// State is the lifecycle phase of a Reader.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Reader.
type Options struct {
	// MMap maps segment files into memory instead of reading through ReadAt.
	MMap bool
	// DefaultLimit applies when a query passes k == 0.
	DefaultLimit int
}

// Hit is one ranked match with its stored payload attached.
type Hit struct {
	DocID   int     `json:"doc_id"`
	Score   float64 `json:"score"`
	Payload []byte  `json:"payload"`
}

// SearchResult is a ranked term query plus the counts behind it.
type SearchResult struct {
	Term      index.Term `json:"term"`
	TotalHits int        `json:"total_hits"`
	Hits      []Hit      `json:"hits"`
}

// Stats describes an open index. Terms sums the segment dictionaries, so a
// term present in two segments counts twice.
type Stats struct {
	Path        string `json:"path"`
	Generation  uint64 `json:"generation"`
	Segments    int    `json:"segments"`
	MaxDoc      int    `json:"max_doc"`
	NumLive     int    `json:"num_live"`
	Terms       int    `json:"terms"`
	MappedFiles int    `json:"mapped_files"`
}

type Reader struct {
	path string
	opts Options

	mu       sync.RWMutex
	state    State
	openErr  error
	store    *store.Store
	catalog  *catalog.Catalog
	resolver *index.Resolver
}

// New returns an unopened Reader for path.
func New(path string, opts Options) *Reader {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = executor.DefaultK
	}
	return &Reader{path: path, opts: opts}
}

// Open creates a Reader for path and opens it.
func Open(path string, opts Options) (*Reader, error) {
	r := New(path, opts)
	if err := r.Open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Open moves the reader from Unopened to Open. On failure the reader stays
// Unopened and the originating error is returned; later queries fail with
// ErrIndexUnavailable.
func (r *Reader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateOpen:
		return nil
	case StateClosed:
		return pkgerrors.ErrReaderClosed
	}
	st, err := store.Open(r.path, store.Options{MMap: r.opts.MMap})
	if err != nil {
		r.openErr = err
		return fmt.Errorf("opening index %s: %w", r.path, err)
	}
	cat, err := catalog.Open(st)
	if err != nil {
		st.Close()
		r.openErr = err
		return fmt.Errorf("opening index %s: %w", r.path, err)
	}
	r.store = st
	r.catalog = cat
	r.resolver = index.NewResolver(cat)
	r.openErr = nil
	r.state = StateOpen
	return nil
}

// Close releases every file handle and mapping. It is idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return nil
	}
	var err error
	if r.state == StateOpen {
		r.catalog.Close()
		err = r.store.Close()
	}
	r.state = StateClosed
	r.store, r.catalog, r.resolver = nil, nil, nil
	return err
}

func (r *Reader) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Reader) Path() string {
	return r.path
}

// checkOpen must be called with r.mu held.
func (r *Reader) checkOpen() error {
	switch r.state {
	case StateOpen:
		return nil
	case StateClosed:
		return pkgerrors.ErrReaderClosed
	default:
		if r.openErr != nil {
			return fmt.Errorf("%w: open failed: %v", pkgerrors.ErrIndexUnavailable, r.openErr)
		}
		return fmt.Errorf("%w: reader not opened", pkgerrors.ErrIndexUnavailable)
	}
}

// DocumentCount returns the number of live documents.
func (r *Reader) DocumentCount() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	return r.catalog.NumLive(), nil
}

// MaxDoc returns the size of the document id space, tombstones included.
func (r *Reader) MaxDoc() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	return r.catalog.MaxDoc(), nil
}

// AllDocumentPayloads materializes the payload of every live document in
// ascending id order. The whole collection is built before returning so a
// remote caller pays one round trip instead of one per document.
func (r *Reader) AllDocumentPayloads() ([][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, r.catalog.NumLive())
	err := r.catalog.ForEachLive(func(_ int, p []byte) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting payloads: %w", err)
	}
	return out, nil
}

// Payload returns the stored payload of a live document. Out-of-range and
// tombstoned ids fail with ErrDocumentNotFound.
func (r *Reader) Payload(id int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if id >= 0 && id < r.catalog.MaxDoc() && !r.catalog.IsLive(id) {
		return nil, fmt.Errorf("%w: id %d is deleted", pkgerrors.ErrDocumentNotFound, id)
	}
	return r.catalog.Payload(id)
}

// DocFreq returns how many documents' postings contain field:value,
// tombstoned documents included.
func (r *Reader) DocFreq(field, value string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	return r.resolver.DocFreq(index.Term{Field: field, Value: value}), nil
}

// Search runs a single-term query and attaches the payload of each hit.
// k == 0 applies the default limit; negative k is invalid.
func (r *Reader) Search(field, value string, k int) (*SearchResult, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", pkgerrors.ErrInvalidInput, k)
	}
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", pkgerrors.ErrInvalidInput)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if k == 0 {
		k = r.opts.DefaultLimit
	}
	term := index.Term{Field: field, Value: value}
	postings, err := r.resolver.Resolve(term)
	if err != nil {
		return nil, err
	}
	res := executor.Execute(postings, r.catalog, k)
	hits := make([]Hit, 0, len(res.Hits))
	for _, sd := range res.Hits {
		p, err := r.catalog.Payload(sd.DocID)
		if err != nil {
			return nil, fmt.Errorf("fetching payload for hit %d: %w", sd.DocID, err)
		}
		hits = append(hits, Hit{DocID: sd.DocID, Score: sd.Score, Payload: p})
	}
	return &SearchResult{Term: term, TotalHits: res.Matched, Hits: hits}, nil
}

// QueryTerm returns at most k hits for field:value, best first.
func (r *Reader) QueryTerm(field, value string, k int) ([]Hit, error) {
	res, err := r.Search(field, value, k)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// QueryField runs QueryTerm and projects the queried field out of each JSON
// payload, skipping hits whose payload lacks it.
func (r *Reader) QueryField(field, value string, k int) ([]string, error) {
	hits, err := r.QueryTerm(field, value, k)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(hits))
	for _, h := range hits {
		v, ok, err := payload.Field(h.Payload, field)
		if err != nil {
			return nil, fmt.Errorf("projecting %q from doc %d: %w", field, h.DocID, err)
		}
		if ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// Generation returns the manifest generation of the open index.
func (r *Reader) Generation() (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	return r.store.Generation(), nil
}

// Stats describes the open index.
func (r *Reader) Stats() (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return Stats{}, err
	}
	st := Stats{
		Path:       r.path,
		Generation: r.store.Generation(),
		Segments:   len(r.catalog.Segments()),
		MaxDoc:     r.catalog.MaxDoc(),
		NumLive:    r.catalog.NumLive(),
	}
	for _, seg := range r.catalog.Segments() {
		st.Terms += seg.Terms()
	}
	for _, info := range r.store.Segments() {
		if f, err := r.store.File(info.ID); err == nil && f.Mapped() {
			st.MappedFiles++
		}
	}
	return st, nil
}
