// Package proxy implements the forward HTTP/HTTPS proxy core: the GET
// pipeline, the CONNECT tunnel, and the listener loop and admission gate
// that feed connections into them.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasbeersinghchauhan/httpproxy/internal/cache"
	"github.com/jasbeersinghchauhan/httpproxy/internal/logging"
)

// Server is the proxy's listener loop, admission gate, and shared
// dependencies (cache, event log, access log) for every accepted
// connection's handler goroutine.
type Server struct {
	cache  *cache.Cache
	events *logging.EventLog
	access *logging.AccessLogger

	socketTimeout      time.Duration
	connectIdleTimeout time.Duration

	sem chan struct{} // admission gate: one token per in-flight connection

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg     sync.WaitGroup
	nextID atomic.Int64
}

// NewServer constructs a Server. maxConnections bounds concurrent
// in-flight handler goroutines; socketTimeout is the client/origin
// receive-and-send deadline; connectIdleTimeout is the CONNECT tunnel's
// mutual-idleness timeout.
func NewServer(c *cache.Cache, events *logging.EventLog, access *logging.AccessLogger, maxConnections int, socketTimeout, connectIdleTimeout time.Duration) *Server {
	return &Server{
		cache:              c,
		events:             events,
		access:             access,
		socketTimeout:      socketTimeout,
		connectIdleTimeout: connectIdleTimeout,
		sem:                make(chan struct{}, maxConnections),
	}
}

// Start binds addr and runs the accept loop, blocking until the listener
// is closed via Shutdown or a fatal accept error occurs.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds addr without starting the accept loop. It lets callers
// (tests in particular) learn the bound address via Addr before handing
// off to Serve, which is useful when addr ends in ":0".
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.events.Info("SYSTEM", "LISTENING", ln.Addr().String())
	return nil
}

// Addr returns the bound listener's address. It must be called after
// Listen (or Start) has succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop against a listener already established by
// Listen, blocking until the listener is closed via Shutdown or a fatal
// accept error occurs.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("proxy: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("proxy: accept: %w", err)
		}

		// Block until an admission token is available, mirroring the
		// reference implementation's wait-before-spawn semaphore: a
		// saturated proxy stalls new accepts rather than piling up
		// unbounded handler goroutines.
		s.sem <- struct{}{}

		id := s.nextID.Add(1)
		s.wg.Add(1)
		go func(c net.Conn, id int64) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleConnection(c, id)
		}(conn, id)
	}
}

// Shutdown closes the listener so Start's accept loop returns, then waits
// (bounded by ctx) for in-flight handlers to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logAccess records one request summary through the access logger, when
// one is configured.
func (s *Server) logAccess(start time.Time, cacheStatus string, status int, method string, size int64, url, contentType string) {
	if s.access == nil {
		return
	}
	s.access.LogRequest(method, url, cacheStatus, status, size, time.Since(start), contentType)
}
