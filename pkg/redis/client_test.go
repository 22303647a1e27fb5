package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
)

// newTestClient connects to SR_TEST_REDIS_ADDR (default localhost:6379) and
// skips when no server answers.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SR_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, DB: 15, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGetFlush(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "srtest:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "srtest:b", []byte("2"), time.Minute))

	v, err := c.Get(ctx, "srtest:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	n, err := c.FlushByPattern(ctx, "srtest:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.Get(ctx, "srtest:a")
	assert.True(t, IsNilError(err))
}

func TestIsNilError(t *testing.T) {
	assert.False(t, IsNilError(errors.New("boom")))
	assert.False(t, IsNilError(nil))
}
