package reload

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/metrics"
)

func buildIndex(t *testing.T, dir string, generation uint64, payloads ...string) {
	t.Helper()
	seg := builder.Segment{Name: "seg-0"}
	for _, p := range payloads {
		d, err := builder.FromJSON([]byte(p))
		require.NoError(t, err)
		seg.Docs = append(seg.Docs, d)
	}
	_, err := builder.Build(dir, []builder.Segment{seg}, builder.Options{Generation: generation})
	require.NoError(t, err)
}

func newManager(t *testing.T, hooks ...SwapHook) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "gen-1")
	buildIndex(t, dir, 1, `{"name":"lorem"}`)
	r, err := shard.Open(dir, shard.Options{})
	require.NoError(t, err)
	m := NewManager(r, shard.Options{}, hooks...)
	t.Cleanup(func() { m.Close() })
	return m, root
}

func TestHandleMessageSwapsReader(t *testing.T) {
	var swapped []uint64
	m, root := newManager(t, func(_ context.Context, r *shard.Reader) {
		st, err := r.Stats()
		require.NoError(t, err)
		swapped = append(swapped, st.Generation)
	})
	old := m.Current()

	dir := filepath.Join(root, "gen-2")
	buildIndex(t, dir, 2, `{"name":"magnam"}`, `{"name":"ipsum"}`)
	require.NoError(t, m.HandleMessage(context.Background(), nil,
		[]byte(`{"generation":2,"index_dir":"`+dir+`"}`)))

	assert.Equal(t, []uint64{2}, swapped)
	assert.Equal(t, shard.StateClosed, old.State())
	n, err := m.Current().DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// stale notices do not reopen anything
	require.NoError(t, m.HandleMessage(context.Background(), nil, []byte(`{"generation":2}`)))
	assert.Len(t, swapped, 1)
}

func TestReloadInPlace(t *testing.T) {
	m, root := newManager(t)
	dir := filepath.Join(root, "gen-1")

	ok, err := m.Reload(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok, "same generation is not a swap")

	buildIndex(t, dir, 5, `{"name":"a"}`, `{"name":"b"}`, `{"name":"c"}`)
	ok, err = m.Reload(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := m.Current().DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReloadFailureKeepsCurrent(t *testing.T) {
	m, root := newManager(t)
	before := m.Current()

	err := m.HandleMessage(context.Background(), nil,
		[]byte(`{"generation":9,"index_dir":"`+filepath.Join(root, "missing")+`"}`))
	require.Error(t, err)
	assert.Same(t, before, m.Current())
	assert.Equal(t, shard.StateOpen, before.State())

	err = m.HandleMessage(context.Background(), nil, []byte(`not json`))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestReloadAfterClose(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Reload(context.Background(), "")
	assert.ErrorIs(t, err, pkgerrors.ErrReaderClosed)
}

func TestGaugeHook(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	mgr, root := newManager(t, GaugeHook(m))
	SetGauges(m, mgr.Current())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveDocuments))

	dir := filepath.Join(root, "gen-3")
	buildIndex(t, dir, 3, `{"a":"x"}`, `{"a":"y"}`)
	_, err := mgr.Reload(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveDocuments))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MaxDocuments))
}
