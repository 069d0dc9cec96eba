// Package netserver runs the raw TCP listeners behind tcp, smtp and custom
// imposters.
//
// A Server owns one listener, accepts connections in a background goroutine
// and hands each one to a Handler. Stop closes the listener and every open
// connection, then waits for the handlers to return so the port is free when
// Stop does.
package netserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
)

// Handler serves one accepted connection. ctx is cancelled when the server
// stops. The server closes conn after the handler returns.
type Handler func(ctx context.Context, conn net.Conn)

// Listen binds a TCP listener on host:port. Port 0 requests an ephemeral
// port. Failures are reported as imposter.ErrBind.
func Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	if port < 0 || port > 65535 {
		return nil, imposter.Configurationf("port %d out of range", port)
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", imposter.ErrBind, addr, err)
	}
	return ln, nil
}

// PortOf returns the TCP port a listener is bound to.
func PortOf(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Accept retry backoff bounds for errors other than a closed listener,
// such as running out of file descriptors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server is a running accept loop.
type Server struct {
	ln      net.Listener
	handler Handler
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// Serve starts accepting connections on ln.
func Serve(ln net.Listener, handler Handler, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ln:      ln,
		handler: handler,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s
}

// Port returns the bound port.
func (s *Server) Port() int { return PortOf(s.ln) }

// Addr returns the listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var delay time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.log.Warn("accept failed; retrying", "error", err, "retryIn", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		delay = 0
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	s.handler(s.ctx, conn)
}

// Stop closes the listener and all connections and waits for the handlers.
// It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.stopErr = err
		}
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.stopErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections to close: %w", ctx.Err())
	}
}
