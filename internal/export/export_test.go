package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/config"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/metrics"
)

// sevenDocReader has ids 0..6 with id 4 tombstoned.
func sevenDocReader(t *testing.T) *shard.Reader {
	t.Helper()
	var docs []segment.Document
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		d, err := builder.FromJSON([]byte(`{"name":"` + name + `"}`))
		require.NoError(t, err)
		docs = append(docs, d)
	}
	dir := t.TempDir()
	_, err := builder.Build(dir, []builder.Segment{
		{Name: "seg-0", Docs: docs[:4]},
		{Name: "seg-1", Docs: docs[4:], Deleted: []uint32{0}},
	}, builder.Options{Generation: 12})
	require.NoError(t, err)
	r, err := shard.Open(dir, shard.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

type fakeSink struct {
	began    uint64
	batches  [][]Record
	failures int
	err      error
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Begin(_ context.Context, generation uint64) error {
	s.began = generation
	return nil
}

func (s *fakeSink) WriteBatch(_ context.Context, _ uint64, batch []Record) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func testConfig() config.ExportConfig {
	return config.ExportConfig{BatchSize: 3, MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func TestRunBatchesLiveDocuments(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	sink := &fakeSink{failures: 1}

	sum, err := New(testConfig(), m).Run(context.Background(), sevenDocReader(t), sink)
	require.NoError(t, err)

	assert.Equal(t, uint64(12), sink.began)
	assert.Equal(t, 6, sum.Documents)
	assert.Equal(t, 2, sum.Batches)
	require.Len(t, sink.batches, 2)
	var ids []int
	for _, b := range sink.batches {
		for _, rec := range b {
			ids = append(ids, rec.DocID)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 5, 6}, ids)
	assert.Equal(t, `{"name":"f"}`, string(sink.batches[1][1].Payload))

	assert.Equal(t, 6.0, testutil.ToFloat64(m.ExportedDocsTotal.WithLabelValues("fake")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExportBatchesTotal.WithLabelValues("fake", "ok")))
}

func TestRunStopsOnPermanentError(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	sink := &fakeSink{err: pkgerrors.ErrInvalidInput}

	sum, err := New(testConfig(), m).Run(context.Background(), sevenDocReader(t), sink)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	assert.Zero(t, sum.Documents)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportBatchesTotal.WithLabelValues("fake", "error")))
}

func TestRunClosedReader(t *testing.T) {
	r := sevenDocReader(t)
	require.NoError(t, r.Close())
	_, err := New(testConfig(), nil).Run(context.Background(), r, &fakeSink{})
	assert.ErrorIs(t, err, pkgerrors.ErrReaderClosed)
}

type fakePublisher struct {
	events []kafka.Event
}

func (p *fakePublisher) Topic() string { return "shard-documents" }

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func TestKafkaSink(t *testing.T) {
	pub := &fakePublisher{}
	_, err := New(testConfig(), nil).Run(context.Background(), sevenDocReader(t), NewKafkaSink(pub))
	require.NoError(t, err)
	require.Len(t, pub.events, 6)
	assert.Equal(t, "5", pub.events[4].Key)
	assert.Equal(t, `{"name":"f"}`, string(pub.events[4].Raw))
	assert.Equal(t, "12", pub.events[4].Headers["generation"])
}

type fakeCopier struct {
	ensured string
	deleted uint64
	rows    [][]any
}

func (c *fakeCopier) EnsureExportTable(_ context.Context, table string) error {
	c.ensured = table
	return nil
}

func (c *fakeCopier) DeleteGeneration(_ context.Context, _ string, generation uint64) (int64, error) {
	c.deleted = generation
	return 0, nil
}

func (c *fakeCopier) CopyRows(_ context.Context, _ string, columns []string, rows [][]any) (int64, error) {
	c.rows = append(c.rows, rows...)
	return int64(len(rows)), nil
}

func TestPostgresSink(t *testing.T) {
	db := &fakeCopier{}
	_, err := New(testConfig(), nil).Run(context.Background(), sevenDocReader(t), NewPostgresSink(db, "shard_documents"))
	require.NoError(t, err)
	assert.Equal(t, "shard_documents", db.ensured)
	assert.Equal(t, uint64(12), db.deleted)
	require.Len(t, db.rows, 6)
	assert.Equal(t, []any{int64(12), int64(0), []byte(`{"name":"a"}`)}, db.rows[0])
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sum, err := New(testConfig(), nil).Run(context.Background(), sevenDocReader(t), NewWriterSink(&buf))
	require.NoError(t, err)
	assert.Equal(t, "writer", sum.Sink)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `{"doc_id":0,"payload":{"name":"a"}}`, lines[0])
}
