package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/mcp"
)

// ErrNonLoopback is returned when asked to listen on a non-loopback host
var ErrNonLoopback = errors.New("refusing to listen on a non-loopback address")

// TCPServer accepts loopback connections and runs one session per
// connection
type TCPServer struct {
	dispatcher *mcp.Dispatcher
	cfg        config.Server
	listener   net.Listener
	startTime  time.Time
	wg         sync.WaitGroup

	mu      sync.Mutex
	running bool
	conns   map[net.Conn]struct{}
}

// NewTCPServer validates the listen address; nothing is bound until Start
func NewTCPServer(d *mcp.Dispatcher, cfg config.Server) (*TCPServer, error) {
	if !config.IsLoopbackHost(cfg.Host) {
		return nil, fmt.Errorf("%w: %s", ErrNonLoopback, cfg.Host)
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = config.DefaultMaxLineBytes
	}
	return &TCPServer{
		dispatcher: d,
		cfg:        cfg,
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener and begins accepting connections
func (s *TCPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	if err := requireLoopback(listener.Addr()); err != nil {
		listener.Close()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	debug.LogRPC("tcp server listening on %s\n", listener.Addr())
	return nil
}

// requireLoopback checks the address actually bound. A host name such as
// "localhost" may resolve to a routable interface.
func requireLoopback(addr net.Addr) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsLoopback() {
		return fmt.Errorf("%w: bound %s", ErrNonLoopback, addr)
	}
	return nil
}

// Addr returns the bound address, useful when the configured port is 0
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve starts the server and blocks until ctx is cancelled, then shuts
// down gracefully
func (s *TCPServer) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *TCPServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Warning: accept failed: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	debug.LogRPC("connection from %s\n", conn.RemoteAddr())

	sess := newSession(s.dispatcher, conn, conn, s.cfg.MaxLineBytes)
	if err := sess.run(ctx); err != nil && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
		log.Printf("Warning: connection %s ended: %v", conn.RemoteAddr(), err)
	}

	stats := sess.snapshot()
	debug.LogRPC("connection %s closed: %d requests, %d oversized\n", conn.RemoteAddr(), stats.Requests, stats.Oversized)
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Connections returns the number of open connections
func (s *TCPServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown stops accepting, lets in-flight requests finish, and closes
// every connection. Connections still open when ctx expires are closed
// forcibly.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for conn := range s.conns {
		// Unblocks the pending read; a request being handled still completes
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		debug.LogRPC("tcp server shut down cleanly after %s\n", time.Since(s.startTime).Round(time.Millisecond))
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return fmt.Errorf("server shutdown error: %w", ctx.Err())
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
