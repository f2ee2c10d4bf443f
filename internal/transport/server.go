package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"

	"github.com/msageha/agentsync/internal/logging"
)

// PeerFunc serves one accepted connection. The Conn is not yet running; the func owns Run.
type PeerFunc func(ctx context.Context, conn *Conn)

// Server accepts duplex peers. It stands in for the agent backend in the replay command and tests.
type Server struct {
	network  string
	address  string
	opts     Options
	listener net.Listener
	serve    PeerFunc
	logger   *logging.Logger
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer(network, address string, opts Options, serve PeerFunc, logger *logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		network: network,
		address: address,
		opts:    opts,
		serve:   serve,
		logger:  logger.With("server"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) Start() error {
	if s.network == "unix" {
		// stale socket file
		_ = os.Remove(s.address)
	}

	listener, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}

	if s.network == "unix" {
		if err := os.Chmod(s.address, 0600); err != nil {
			_ = listener.Close()
			return fmt.Errorf("chmod socket: %w", err)
		}
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr is the bound address, useful with tcp port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, cancels every peer and waits for them to return.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if s.network == "unix" {
		_ = os.Remove(s.address)
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warnf("accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(raw)
	}
}

func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()
	conn := NewConn(raw, s.opts, s.logger)
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("panic in peer %s: %v\n%s", conn.ID(), r, debug.Stack())
		}
	}()

	s.logger.Debugf("peer connected conn=%s", conn.ID())
	s.serve(s.ctx, conn)
}
