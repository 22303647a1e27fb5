package reload

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/metrics"
)

// SetGauges records the live and total document counts of r.
func SetGauges(m *metrics.Metrics, r *shard.Reader) {
	if n, err := r.DocumentCount(); err == nil {
		m.LiveDocuments.Set(float64(n))
	}
	if n, err := r.MaxDoc(); err == nil {
		m.MaxDocuments.Set(float64(n))
	}
}

// GaugeHook keeps the document gauges in step with the served reader.
func GaugeHook(m *metrics.Metrics) SwapHook {
	return func(_ context.Context, r *shard.Reader) {
		SetGauges(m, r)
	}
}

// InvalidateHook drops cached queries of earlier generations. Their keys
// could never be hit again; this only reclaims the memory early.
func InvalidateHook(qc *cache.QueryCache) SwapHook {
	return func(ctx context.Context, _ *shard.Reader) {
		if _, err := qc.Invalidate(ctx); err != nil {
			logger.FromContext(ctx).Warn("cache invalidation after reload failed", "component", "reload", "error", err)
		}
	}
}
