// Package ipc accepts local connections on a Unix socket and hands each one
// to a connection handler.
package ipc

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
)

// ConnHandler serves one accepted connection. The server closes conn when
// the handler returns.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Logger is satisfied by logging.Logger; kept minimal to avoid dependency cycles.
type Logger interface {
	Printf(format string, v ...any)
}

// Server listens for local connections over a Unix socket.
type Server struct {
	handler ConnHandler
	logger  Logger

	mu       sync.Mutex
	ln       net.Listener
	endpoint string
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer constructs an IPC server.
func NewServer(handler ConnHandler, logger Logger) *Server {
	return &Server{
		handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start begins accepting connections on endpoint. A stale socket file left
// by a previous run is removed first.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	if s == nil || s.handler == nil {
		return errors.New("ipc: server has no handler")
	}
	if err := removeStale(endpoint); err != nil {
		return err
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		ln.Close()
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.endpoint = endpoint
	s.mu.Unlock()
	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
	return nil
}

// Addr returns the socket path once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("accept error: %v", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()
	s.handler(ctx, conn)
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

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Stop closes the listener and every open connection, waits for handlers to
// return and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	endpoint := s.endpoint
	s.mu.Unlock()

	s.wg.Wait()
	if endpoint != "" {
		if rmErr := os.Remove(endpoint); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

// removeStale deletes a socket file nobody is listening on.
func removeStale(endpoint string) error {
	info, err := os.Stat(endpoint)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return errors.New("ipc: " + endpoint + " exists and is not a socket")
	}
	if conn, err := net.Dial("unix", endpoint); err == nil {
		conn.Close()
		return errors.New("ipc: " + endpoint + " is already in use")
	}
	return os.Remove(endpoint)
}
