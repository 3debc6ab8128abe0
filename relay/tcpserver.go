package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/SUNET/ais-data-relay/errors"
)

// Auth handshake bounds from the downstream protocol
const (
	authUsernameMax = 64
	authPasswordMax = 256
	authReadTimeout = 30 * time.Second
)

// TCPServer accepts raw relay clients, runs the auth handshake when
// enabled, and parks admitted connections in the hub until they close.
type TCPServer struct {
	port   int
	gate   *CredentialGate
	hub    *Hub
	logger *slog.Logger

	lifecycleMu sync.Mutex
	started     bool
	listener    net.Listener
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewTCPServer creates the raw relay server
func NewTCPServer(port int, gate *CredentialGate, hub *Hub, logger *slog.Logger) *TCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TCPServer{
		port:   port,
		gate:   gate,
		hub:    hub,
		logger: logger.With("component", "tcp-server"),
	}
}

// Initialize validates collaborators
func (s *TCPServer) Initialize() error {
	if s.gate == nil || s.hub == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "TCPServer", "Initialize", "auth gate and hub")
	}
	return nil
}

// Start binds the listener and launches the accept loop
func (s *TCPServer) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		return errors.ErrAlreadyStarted
	}
	if err := s.Initialize(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "TCPServer", "Start", "bind listener")
	}
	s.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.logger.Info("TCP relay listening", "port", s.port)

	s.wg.Add(1)
	go s.acceptLoop(runCtx)
	return nil
}

// Stop closes the listener and waits for handlers to finish
func (s *TCPServer) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.cancel()
	_ = s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(
			fmt.Errorf("tcp server did not stop within %s", timeout),
			"TCPServer", "Stop", "wait for shutdown")
	}
}

func (s *TCPServer) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleClient(ctx, conn)
	}
}

// handleClient runs the auth handshake, then holds the connection in the
// hub, discarding anything the client sends, until it closes
func (s *TCPServer) handleClient(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	addr := conn.RemoteAddr()
	s.logger.Info("TCP client connected", "remote", addr)

	// Stop cancels the context; closing the connection here unblocks
	// the auth reads and the hold-open read below.
	handlerDone := make(chan struct{})
	defer close(handlerDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handlerDone:
		}
	}()

	ok, err := s.authenticate(conn)
	if err != nil || !ok {
		_ = conn.Close()
		return
	}

	s.hub.AddRaw(conn)
	defer func() {
		s.hub.RemoveRaw(conn)
		s.logger.Info("TCP client disconnected", "remote", addr)
	}()

	// Client writes are discarded; a read error means the peer is gone.
	// The stop path closes the connection, which also unblocks this read.
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// authenticate runs the challenge/response exchange when the gate is
// enabled. Timeouts and oversize lines are rejections.
func (s *TCPServer) authenticate(conn net.Conn) (bool, error) {
	if !s.gate.Enabled() {
		return true, nil
	}

	addr := conn.RemoteAddr()

	if _, err := conn.Write([]byte("AUTH REQUIRED\r\nUsername: ")); err != nil {
		return false, err
	}
	usernameLine, err := readLineLimited(conn, authUsernameMax, authReadTimeout)
	if err != nil {
		return false, s.rejectAuth(conn, addr, err)
	}

	if _, err := conn.Write([]byte("Password: ")); err != nil {
		return false, err
	}
	passwordLine, err := readLineLimited(conn, authPasswordMax, authReadTimeout)
	if err != nil {
		return false, s.rejectAuth(conn, addr, err)
	}

	username := strings.TrimSpace(string(usernameLine))
	password := strings.TrimSpace(string(passwordLine))

	if s.gate.Verify(username, password) {
		if _, err := conn.Write([]byte("AUTH SUCCESS\r\n")); err != nil {
			return false, err
		}
		s.logger.Info("TCP client authenticated", "remote", addr, "user", username)
		return true, nil
	}

	_, _ = conn.Write([]byte("AUTH FAILED\r\n"))
	s.logger.Warn("TCP authentication failed", "remote", addr)
	return false, nil
}

// rejectAuth writes the status line matching the failure and returns the
// original error
func (s *TCPServer) rejectAuth(conn net.Conn, addr net.Addr, err error) error {
	switch {
	case errors.Is(err, errors.ErrAuthTimeout):
		_, _ = conn.Write([]byte("AUTH TIMEOUT\r\n"))
		s.logger.Warn("TCP authentication timeout", "remote", addr)
	case errors.Is(err, errors.ErrLineTooLong):
		_, _ = conn.Write([]byte("AUTH FAILED\r\n"))
		s.logger.Warn("TCP authentication line too long", "remote", addr)
	case errors.Is(err, io.EOF), errors.Is(err, errors.ErrConnectionLost):
		s.logger.Info("TCP client left during auth", "remote", addr)
	default:
		s.logger.Warn("TCP authentication error", "remote", addr, "error", err)
	}
	return err
}
