package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/rpc"
)

// RPC method names.
const (
	MethodDocCount     = "ShardReader.DocCount"
	MethodMaxDoc       = "ShardReader.MaxDoc"
	MethodAllDocSource = "ShardReader.AllDocSource"
	MethodQueryTerm    = "ShardReader.QueryTerm"
	MethodQueryField   = "ShardReader.QueryField"
	MethodDocFreq      = "ShardReader.DocFreq"
	MethodStats        = "ShardReader.Stats"
)

// TermParams are the parameters of the term methods.
type TermParams struct {
	Field string `json:"field"`
	Value string `json:"value"`
	K     int    `json:"k,omitempty"`
}

func decodeTerm(raw json.RawMessage) (TermParams, error) {
	var p TermParams
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: missing params", pkgerrors.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: decoding params: %v", pkgerrors.ErrInvalidInput, err)
	}
	return p, nil
}

// RegisterRPC exposes the reader operations on s. Calls honor ctx only
// before they start; reader operations themselves do not block. A positive
// maxResults caps k on term queries.
func RegisterRPC(s *rpc.Server, src Source, maxResults int) {
	noParams := func(fn func(*shard.Reader) (any, error)) rpc.HandlerFunc {
		return func(ctx context.Context, _ json.RawMessage) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return withReader(src, fn)
		}
	}
	withTerm := func(fn func(*shard.Reader, TermParams) (any, error)) rpc.HandlerFunc {
		return func(ctx context.Context, raw json.RawMessage) (any, error) {
			p, err := decodeTerm(raw)
			if err != nil {
				return nil, err
			}
			if maxResults > 0 && p.K > maxResults {
				p.K = maxResults
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return withReader(src, func(rd *shard.Reader) (any, error) { return fn(rd, p) })
		}
	}

	s.Register(MethodDocCount, noParams(func(rd *shard.Reader) (any, error) { return rd.DocumentCount() }))
	s.Register(MethodMaxDoc, noParams(func(rd *shard.Reader) (any, error) { return rd.MaxDoc() }))
	s.Register(MethodAllDocSource, noParams(func(rd *shard.Reader) (any, error) { return rd.AllDocumentPayloads() }))
	s.Register(MethodStats, noParams(func(rd *shard.Reader) (any, error) { return rd.Stats() }))
	s.Register(MethodQueryTerm, withTerm(func(rd *shard.Reader, p TermParams) (any, error) {
		return rd.QueryTerm(p.Field, p.Value, p.K)
	}))
	s.Register(MethodQueryField, withTerm(func(rd *shard.Reader, p TermParams) (any, error) {
		return rd.QueryField(p.Field, p.Value, p.K)
	}))
	s.Register(MethodDocFreq, withTerm(func(rd *shard.Reader, p TermParams) (any, error) {
		return rd.DocFreq(p.Field, p.Value)
	}))
}

// Client calls a remote shard reader.
type Client struct {
	c *rpc.Client
}

// Dial connects to a shard reader RPC endpoint.
func Dial(ctx context.Context, addr string) (*Client, error) {
	c, err := rpc.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

func (c *Client) Close() error { return c.c.Close() }

func (c *Client) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := c.c.Call(ctx, MethodDocCount, nil, &n)
	return n, err
}

func (c *Client) MaxDoc(ctx context.Context) (int, error) {
	var n int
	err := c.c.Call(ctx, MethodMaxDoc, nil, &n)
	return n, err
}

// AllDocumentPayloads fetches every live payload in one call.
func (c *Client) AllDocumentPayloads(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	err := c.c.Call(ctx, MethodAllDocSource, nil, &out)
	return out, err
}

func (c *Client) QueryTerm(ctx context.Context, field, value string, k int) ([]shard.Hit, error) {
	var hits []shard.Hit
	err := c.c.Call(ctx, MethodQueryTerm, TermParams{Field: field, Value: value, K: k}, &hits)
	return hits, err
}

func (c *Client) QueryField(ctx context.Context, field, value string, k int) ([]string, error) {
	var values []string
	err := c.c.Call(ctx, MethodQueryField, TermParams{Field: field, Value: value, K: k}, &values)
	return values, err
}

func (c *Client) DocFreq(ctx context.Context, field, value string) (int, error) {
	var n int
	err := c.c.Call(ctx, MethodDocFreq, TermParams{Field: field, Value: value}, &n)
	return n, err
}

func (c *Client) Stats(ctx context.Context) (shard.Stats, error) {
	var st shard.Stats
	err := c.c.Call(ctx, MethodStats, nil, &st)
	return st, err
}
