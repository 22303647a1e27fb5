// Package postgres wraps a lib/pq connection pool with the transaction and
// bulk-copy helpers the export sink needs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
)

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping is suitable as a health probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// EnsureExportTable creates the document export table if it is missing.
// Rows are keyed by (generation, doc_id).
func (c *Client) EnsureExportTable(ctx context.Context, table string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	generation BIGINT NOT NULL,
	doc_id     BIGINT NOT NULL,
	payload    BYTEA  NOT NULL,
	exported_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (generation, doc_id)
)`, pq.QuoteIdentifier(table))
	if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return nil
}

// CopyRows bulk-loads rows into table with COPY inside one transaction.
// Each row must have one value per column.
func (c *Client) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var n int64
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
		if err != nil {
			return fmt.Errorf("preparing copy into %s: %w", table, err)
		}
		for _, row := range rows {
			if len(row) != len(columns) {
				stmt.Close()
				return fmt.Errorf("copy into %s: row has %d values, want %d", table, len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return fmt.Errorf("copying row into %s: %w", table, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing copy into %s: %w", table, err)
		}
		n = int64(len(rows))
		return stmt.Close()
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteGeneration removes previously exported rows of one generation so a
// retried export starts clean.
func (c *Client) DeleteGeneration(ctx context.Context, table string, generation uint64) (int64, error) {
	res, err := c.DB.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE generation = $1", pq.QuoteIdentifier(table)),
		int64(generation),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting generation %d from %s: %w", generation, table, err)
	}
	return res.RowsAffected()
}
