package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
)

// newTestClient connects to SR_TEST_POSTGRES_HOST and skips when unset or
// unreachable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("SR_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("SR_TEST_POSTGRES_HOST not set")
	}
	c, err := New(config.PostgresConfig{
		Host:            host,
		Port:            5432,
		Database:        "shardreader",
		User:            "shardreader",
		Password:        "localdev",
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCopyRowsAndDeleteGeneration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	table := fmt.Sprintf("srtest_docs_%d", time.Now().UnixNano())
	require.NoError(t, c.EnsureExportTable(ctx, table))
	t.Cleanup(func() { c.DB.Exec("DROP TABLE " + table) })

	cols := []string{"generation", "doc_id", "payload"}
	n, err := c.CopyRows(ctx, table, cols, [][]any{
		{int64(4), int64(0), []byte(`{"name":"lorem"}`)},
		{int64(4), int64(2), []byte(`{"name":"magnam"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var count int
	require.NoError(t, c.DB.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = c.CopyRows(ctx, table, cols, [][]any{{int64(4)}})
	assert.ErrorContains(t, err, "row has 1 values")

	deleted, err := c.DeleteGeneration(ctx, table, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestCopyRowsEmpty(t *testing.T) {
	var c Client
	n, err := c.CopyRows(context.Background(), "unused", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
