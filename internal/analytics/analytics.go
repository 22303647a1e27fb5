// Package analytics aggregates served term queries in process: volume,
// cache effectiveness, latency percentiles and the most frequent terms,
// including the ones that matched nothing.
package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
)

// maxLatencies bounds the latency window used for percentiles.
const maxLatencies = 10000

// QueryEvent describes one served term query.
type QueryEvent struct {
	Field    string
	Value    string
	Hits     int
	Latency  time.Duration
	CacheHit bool
	Failed   bool
}

type Stats struct {
	TotalQueries     int64       `json:"total_queries"`
	Failed           int64       `json:"failed"`
	CacheHits        int64       `json:"cache_hits"`
	ZeroResultCount  int64       `json:"zero_result_count"`
	AvgLatencyMs     float64     `json:"avg_latency_ms"`
	P50LatencyMs     float64     `json:"p50_latency_ms"`
	P95LatencyMs     float64     `json:"p95_latency_ms"`
	P99LatencyMs     float64     `json:"p99_latency_ms"`
	TopTerms         []TermCount `json:"top_terms"`
	ZeroResultTerms  []TermCount `json:"zero_result_terms"`
	QueriesPerMinute float64     `json:"queries_per_minute"`
}

type TermCount struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type termKey struct{ field, value string }

type Aggregator struct {
	mu          sync.Mutex
	total       int64
	failed      int64
	cacheHits   int64
	zeroResults int64
	latencies   []time.Duration
	next        int
	termCounts  map[termKey]int64
	zeroTerms   map[termKey]int64
	startTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:  make([]time.Duration, 0, maxLatencies),
		termCounts: make(map[termKey]int64),
		zeroTerms:  make(map[termKey]int64),
		startTime:  time.Now(),
		now:        time.Now,
		logger:     logger.WithComponent("analytics"),
	}
}

func (a *Aggregator) Record(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if ev.Failed {
		a.failed++
		return
	}
	if ev.CacheHit {
		a.cacheHits++
	}
	key := termKey{ev.Field, ev.Value}
	a.termCounts[key]++
	if ev.Hits == 0 {
		a.zeroResults++
		a.zeroTerms[key]++
	}
	if len(a.latencies) < maxLatencies {
		a.latencies = append(a.latencies, ev.Latency)
	} else {
		a.latencies[a.next] = ev.Latency
		a.next = (a.next + 1) % maxLatencies
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	stats := Stats{
		TotalQueries:    a.total,
		Failed:          a.failed,
		CacheHits:       a.cacheHits,
		ZeroResultCount: a.zeroResults,
		TopTerms:        topN(a.termCounts, 10),
		ZeroResultTerms: topN(a.zeroTerms, 10),
	}
	sorted := slices.Clone(a.latencies)
	elapsed := a.now().Sub(a.startTime).Minutes()
	a.mu.Unlock()

	if len(sorted) > 0 {
		slices.Sort(sorted)
		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = ms(sum / time.Duration(len(sorted)))
		stats.P50LatencyMs = ms(percentile(sorted, 50))
		stats.P95LatencyMs = ms(percentile(sorted, 95))
		stats.P99LatencyMs = ms(percentile(sorted, 99))
	}
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

// Handler serves Stats as JSON.
func (a *Aggregator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
			a.logger.Error("failed to encode analytics", "error", err)
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then field and value, so ties are stable.
func topN(counts map[termKey]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for k, count := range counts {
		result = append(result, TermCount{Field: k.field, Value: k.value, Count: count})
	}
	slices.SortFunc(result, func(a, b TermCount) int {
		switch {
		case a.Count != b.Count:
			if a.Count > b.Count {
				return -1
			}
			return 1
		case a.Field != b.Field:
			if a.Field < b.Field {
				return -1
			}
			return 1
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
