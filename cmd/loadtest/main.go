// Command loadtest drives term queries against a running shard reader and
// reports throughput, latency percentiles and the cache hit ratio.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Field       string
	Values      []string
	K           int
	Concurrency int
	Duration    time.Duration
}

type Stats struct {
	total       atomic.Int64
	success     atomic.Int64
	errors      atomic.Int64
	cacheHits   atomic.Int64
	zeroResults atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the shard reader")
	field := flag.String("field", "name", "field to query")
	values := flag.String("values", "lorem,ipsum,dolor,magnam,voluptatem,quaerat,nihil,absent", "comma-separated terms")
	k := flag.Int("k", 10, "hits per query")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Field:       *field,
		Values:      strings.Split(*values, ","),
		K:           *k,
		Concurrency: *concurrency,
		Duration:    *duration,
	}

	fmt.Println("=== Shard Reader Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Field:       %s (%d terms)\n", cfg.Field, len(cfg.Values))
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	stats := run(cfg)
	if !report(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				value := cfg.Values[next%len(cfg.Values)]
				next++
				query(ctx, client, cfg, value, stats)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func query(ctx context.Context, client *http.Client, cfg Config, value string, stats *Stats) {
	q := url.Values{}
	q.Set("field", cfg.Field)
	q.Set("value", value)
	q.Set("k", fmt.Sprint(cfg.K))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+q.Encode(), nil)
	if err != nil {
		stats.Record(0, 0, err)
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.Record(time.Since(start), 0, err)
		}
		return
	}
	defer resp.Body.Close()
	var body struct {
		Cached bool              `json:"cached"`
		Hits   []json.RawMessage `json:"hits"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	stats.Record(time.Since(start), resp.StatusCode, nil)
	if decodeErr == nil && resp.StatusCode == http.StatusOK {
		if body.Cached {
			stats.cacheHits.Add(1)
		}
		if len(body.Hits) == 0 {
			stats.zeroResults.Add(1)
		}
	}
}

// report prints the results and reports whether any request completed.
func report(stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	success := stats.success.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", stats.errors.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(stats.errors.Load())/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
		fmt.Printf("Zero Results:    %d\n", stats.zeroResults.Load())
	}

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-2.0f:    %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	slices.Sort(codes)
	stats.mu.Lock()
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}
	stats.mu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the shard reader running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
