// Package rpc is a small JSON-over-TCP RPC layer for bulk transfers between
// the shard reader and its consumers. One request moves a whole result, such
// as every live payload of the index, instead of one call per document.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// Request carries an ID that is echoed in the Response and used as the
// request ID in server logs. Failures carry a Code naming the error class
// so clients can rebuild the sentinel error.
//
// Example server:
//
//	s := rpc.NewServer(30 * time.Second)
//	s.Register("ShardReader.DocCount", func(ctx context.Context, _ json.RawMessage) (any, error) {
//	    return reader.DocumentCount()
//	})
//	s.Serve(":9100")
//
// Example client:
//
//	c, _ := rpc.Dial("localhost:9100")
//	var n int
//	c.Call(ctx, "ShardReader.DocCount", nil, &n)
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/logger"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

type Server struct {
	handlers map[string]HandlerFunc
	timeout  time.Duration
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server whose handlers run under the given per-call
// timeout; zero disables it.
func NewServer(timeout time.Duration) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		timeout:  timeout,
		logger:   logger.WithComponent("rpc-server"),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on ln and blocks until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}

	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = CodeUnknownMethod
		return resp
	}

	ctx := logger.WithRequestID(s.ctx, req.ID)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	data, err := call(ctx, handler, req.Params)
	log := logger.FromContext(ctx).With("component", "rpc-server", "method", req.Method, "duration", time.Since(start))
	if err != nil {
		log.Warn("rpc failed", "error", err)
		resp.Error = err.Error()
		resp.Code = codeOf(err)
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error("encoding rpc result", "error", err)
		resp.Error = fmt.Sprintf("encoding result: %v", err)
		resp.Code = CodeInternal
		return resp
	}
	resp.Data = raw
	log.Debug("rpc served", "bytes", len(raw))
	return resp
}

// call runs handler and reports a panic as an internal error.
func call(ctx context.Context, handler HandlerFunc, params json.RawMessage) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, params)
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and open connections, cancels in-flight
// handlers and waits for them to return. It is idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.logger.Info("rpc server stopped")
	})
}
