// Package server exposes a shard reader over HTTP and over the JSON RPC
// boundary.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/payload"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/tracing"
)

// Source hands out the reader to serve. *reload.Manager implements it.
type Source interface {
	Current() *shard.Reader
}

// Static serves one reader for the life of the process.
type Static struct {
	Reader *shard.Reader
}

func (s Static) Current() *shard.Reader { return s.Reader }

// withReader runs fn against the current reader, retrying once when a
// reload closed the reader between Current and the call.
func withReader[T any](src Source, fn func(*shard.Reader) (T, error)) (T, error) {
	v, err := fn(src.Current())
	if errors.Is(err, pkgerrors.ErrReaderClosed) {
		return fn(src.Current())
	}
	return v, err
}

type Handler struct {
	src        Source
	cache      *cache.QueryCache
	metrics    *metrics.Metrics
	analytics  *analytics.Aggregator
	maxResults int
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAnalytics records every search in a and serves GET /api/v1/analytics.
func WithAnalytics(a *analytics.Aggregator) Option {
	return func(h *Handler) { h.analytics = a }
}

// New creates a Handler. qc and m may be nil; maxResults caps k.
func New(src Source, qc *cache.QueryCache, m *metrics.Metrics, maxResults int, opts ...Option) *Handler {
	h := &Handler{
		src:        src,
		cache:      qc,
		metrics:    m,
		maxResults: maxResults,
		logger:     logger.WithComponent("http-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the API routes to mux.
//
//	GET  /api/v1/docs/count
//	GET  /api/v1/docs
//	GET  /api/v1/docs/{id}
//	GET  /api/v1/search?field=&value=&k=&fields=
//	GET  /api/v1/terms/freq?field=&value=
//	GET  /api/v1/stats
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
//	GET  /api/v1/analytics (with WithAnalytics)
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/docs/count", h.DocCount)
	mux.HandleFunc("GET /api/v1/docs", h.AllDocs)
	mux.HandleFunc("GET /api/v1/docs/{id}", h.GetDoc)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/terms/freq", h.DocFreq)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if h.analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", h.analytics.Handler())
	}
}

type countResponse struct {
	Count  int `json:"count"`
	MaxDoc int `json:"max_doc"`
}

func (h *Handler) DocCount(w http.ResponseWriter, r *http.Request) {
	resp, err := withReader(h.src, func(rd *shard.Reader) (countResponse, error) {
		n, err := rd.DocumentCount()
		if err != nil {
			return countResponse{}, err
		}
		maxDoc, err := rd.MaxDoc()
		return countResponse{Count: n, MaxDoc: maxDoc}, err
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type docsResponse struct {
	Count    int               `json:"count"`
	Payloads []json.RawMessage `json:"payloads"`
}

func (h *Handler) AllDocs(w http.ResponseWriter, r *http.Request) {
	payloads, err := withReader(h.src, (*shard.Reader).AllDocumentPayloads)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	resp := docsResponse{Count: len(payloads), Payloads: make([]json.RawMessage, len(payloads))}
	for i, p := range payloads {
		resp.Payloads[i] = payload.JSON(p)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type docResponse struct {
	DocID   int             `json:"doc_id"`
	Payload json.RawMessage `json:"payload"`
}

func (h *Handler) GetDoc(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		h.writeErr(w, r, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest,
			"document id %q must be a non-negative integer", raw))
		return
	}
	p, err := withReader(h.src, func(rd *shard.Reader) ([]byte, error) { return rd.Payload(id) })
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, docResponse{DocID: id, Payload: payload.JSON(p)})
}

type hitResponse struct {
	DocID   int               `json:"doc_id"`
	Score   float64           `json:"score"`
	Payload json.RawMessage   `json:"payload"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type searchResponse struct {
	Field     string        `json:"field"`
	Value     string        `json:"value"`
	TotalHits int           `json:"total_hits"`
	Hits      []hitResponse `json:"hits"`
	Cached    bool          `json:"cached"`
	TookMs    float64       `json:"took_ms"`
}

// Search runs a ranked term query. k above the configured maximum is
// clamped; fields is a comma-separated list of payload fields to project.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	field, value := q.Get("field"), q.Get("value")
	if field == "" {
		h.writeErr(w, r, errFieldRequired)
		return
	}
	k := 0
	if v := q.Get("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeErr(w, r, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest,
				"k must be a non-negative integer, got %q", v))
			return
		}
		k = parsed
	}
	if h.maxResults > 0 && k > h.maxResults {
		k = h.maxResults
	}

	ctx, span := tracing.Start(r.Context(), "search")
	span.SetAttr("field", field)
	span.SetAttr("value", value)
	defer func() {
		span.End()
		span.Log(ctx, logger.FromContext(ctx), slog.LevelDebug)
	}()

	cacheStatus := "disabled"
	result, err := withReader(h.src, func(rd *shard.Reader) (*shard.SearchResult, error) {
		if h.cache == nil {
			return rd.Search(field, value, k)
		}
		gen, err := rd.Generation()
		if err != nil {
			return nil, err
		}
		key := cache.Key{Generation: gen, Field: field, Value: value, K: k}
		res, hit, err := h.cache.GetOrCompute(ctx, key, func() (*shard.SearchResult, error) {
			return rd.Search(field, value, k)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		return res, err
	})
	span.SetAttr("cache_status", cacheStatus)
	h.observeQuery(start, field, value, cacheStatus, result, err)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var project []string
	if v := q.Get("fields"); v != "" {
		project = strings.Split(v, ",")
	}
	resp := searchResponse{
		Field:     field,
		Value:     value,
		TotalHits: result.TotalHits,
		Hits:      make([]hitResponse, 0, len(result.Hits)),
		Cached:    cacheStatus == "hit",
		TookMs:    float64(time.Since(start).Microseconds()) / 1000,
	}
	for _, hit := range result.Hits {
		hr := hitResponse{DocID: hit.DocID, Score: hit.Score, Payload: payload.JSON(hit.Payload)}
		if len(project) > 0 {
			// non-JSON payloads have nothing to project
			hr.Fields, _ = payload.Fields(hit.Payload, project...)
		}
		resp.Hits = append(resp.Hits, hr)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) observeQuery(start time.Time, field, value, cacheStatus string, res *shard.SearchResult, err error) {
	if h.analytics != nil {
		ev := analytics.QueryEvent{
			Field:    field,
			Value:    value,
			Latency:  time.Since(start),
			CacheHit: cacheStatus == "hit",
			Failed:   err != nil,
		}
		if res != nil {
			ev.Hits = len(res.Hits)
		}
		h.analytics.Record(ev)
	}
	if h.metrics == nil {
		return
	}
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		h.metrics.QueriesTotal.WithLabelValues("search", "error").Inc()
	case len(res.Hits) == 0:
		h.metrics.QueriesTotal.WithLabelValues("search", "zero_result").Inc()
		h.metrics.QueryResultsCount.Observe(0)
	default:
		h.metrics.QueriesTotal.WithLabelValues("search", "hit").Inc()
		h.metrics.QueryResultsCount.Observe(float64(len(res.Hits)))
	}
}

func (h *Handler) DocFreq(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field, value := q.Get("field"), q.Get("value")
	if field == "" {
		h.writeErr(w, r, errFieldRequired)
		return
	}
	n, err := withReader(h.src, func(rd *shard.Reader) (int, error) { return rd.DocFreq(field, value) })
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"field": field, "value": value, "doc_freq": n})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := withReader(h.src, (*shard.Reader).Stats)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  true,
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "cache not enabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "component", "http-handler", "error", err)
		h.writeError(w, http.StatusBadGateway, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys_deleted": deleted})
}

// writeErr maps err to a status code. Server-side failures are logged with
// the request ID; client errors are not.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "http-handler",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	h.writeError(w, status, err.Error())
}

var errFieldRequired = pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'field' is required")

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
