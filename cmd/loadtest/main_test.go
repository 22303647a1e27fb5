package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestStatsRecord(t *testing.T) {
	s := NewStats()
	s.Record(time.Millisecond, 200, nil)
	s.Record(time.Millisecond, 503, nil)
	s.Record(0, 0, assert.AnError)
	assert.Equal(t, int64(3), s.total.Load())
	assert.Equal(t, int64(1), s.success.Load())
	assert.Equal(t, int64(2), s.errors.Load())
	assert.Equal(t, int64(1), s.statusCodes[503])
}
