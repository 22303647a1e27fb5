// Package reload swaps the served shard reader when a new index generation
// is published. Notices arrive on a Kafka topic; each names the generation
// and, optionally, the directory it was written to.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/internal/shard"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
)

// Notice announces a new index generation. An empty IndexDir means the
// generation was rewritten in place.
type Notice struct {
	Generation uint64 `json:"generation"`
	IndexDir   string `json:"index_dir,omitempty"`
}

// SwapHook runs after a new reader becomes current.
type SwapHook func(ctx context.Context, r *shard.Reader)

type Manager struct {
	current atomic.Pointer[shard.Reader]
	dir     string
	opts    shard.Options
	hooks   []SwapHook

	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// NewManager takes ownership of r, which must be open.
func NewManager(r *shard.Reader, opts shard.Options, hooks ...SwapHook) *Manager {
	m := &Manager{
		dir:    r.Path(),
		opts:   opts,
		hooks:  hooks,
		logger: logger.WithComponent("reload"),
	}
	m.current.Store(r)
	return m
}

// Current returns the reader queries should use. A caller that races a swap
// may see ErrReaderClosed and should call Current again.
func (m *Manager) Current() *shard.Reader {
	return m.current.Load()
}

// Reload opens dir (or the current directory when empty) and makes it
// current if its generation is newer. It reports whether a swap happened.
func (m *Manager) Reload(ctx context.Context, dir string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, pkgerrors.ErrReaderClosed
	}
	if dir == "" {
		dir = m.dir
	}
	log := logger.FromContext(ctx).With("component", "reload", "dir", dir)

	old := m.current.Load()
	oldStats, err := old.Stats()
	if err != nil {
		return false, err
	}
	next, err := shard.Open(dir, m.opts)
	if err != nil {
		log.Error("opening new generation failed", "error", err)
		return false, fmt.Errorf("reloading %s: %w", dir, err)
	}
	nextStats, err := next.Stats()
	if err != nil {
		next.Close()
		return false, err
	}
	if nextStats.Generation <= oldStats.Generation {
		next.Close()
		log.Info("generation not newer, keeping current reader",
			"current", oldStats.Generation, "found", nextStats.Generation)
		return false, nil
	}

	m.current.Store(next)
	m.dir = dir
	if err := old.Close(); err != nil {
		log.Warn("closing previous reader", "error", err)
	}
	log.Info("index reloaded",
		"from_generation", oldStats.Generation,
		"to_generation", nextStats.Generation,
		"num_live", nextStats.NumLive,
	)
	for _, hook := range m.hooks {
		hook(ctx, next)
	}
	return true, nil
}

// HandleMessage is a kafka.MessageHandler for reload notices. Notices for
// generations already served are ignored without reopening the index.
func (m *Manager) HandleMessage(ctx context.Context, key, value []byte) error {
	notice, err := kafka.DecodeJSON[Notice](value)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInvalidInput, err)
	}
	if notice.Generation != 0 {
		if st, err := m.Current().Stats(); err == nil && notice.Generation <= st.Generation {
			m.logger.Debug("stale reload notice", "generation", notice.Generation, "current", st.Generation)
			return nil
		}
	}
	_, err = m.Reload(ctx, notice.IndexDir)
	return err
}

// Close closes the current reader. Later reloads fail with ErrReaderClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.current.Load().Close()
}
