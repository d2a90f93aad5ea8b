package latencytest

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Server is the connection-oriented echo responder. Every accepted
// connection is served on its own goroutine with private key state, so
// sessions cannot interfere with each other and one failed session never
// stops the accept loop.
type Server struct {
	listener net.Listener
	cfg      *Config
	logger   Logger
	closed   int32
}

// ListenStream binds the responder to cfg's address.
func ListenStream(cfg *Config) (*Server, error) {
	l, err := net.Listen("tcp", cfg.addr())
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "listen on %s: %v", cfg.addr(), err)
	}
	return &Server{listener: l, cfg: cfg, logger: cfg.logger()}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts and serves connections until Close is called. It returns
// nil after a clean shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			return errors.Wrapf(ErrIO, "accept: %v", err)
		}
		s.logger.WithField("remoteAddr", conn.RemoteAddr()).Info("Client connected")
		go s.handleConn(conn)
	}
}

// handleConn runs one echo session. Data frames are echoed back with their
// encrypted bytes untouched; decryption is the client's business. The key
// still rotates once per data frame to stay in lockstep with the client's
// rotation.
func (s *Server) handleConn(conn net.Conn) {
	logger := s.logger.WithField("remoteAddr", conn.RemoteAddr())
	defer conn.Close()
	key := s.cfg.Seed
	for {
		if s.cfg.ReadTimeout != 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				logger.WithError(err).Error("Failed to set read deadline")
				return
			}
		}
		msg, err := readMessage(conn)
		if err != nil {
			logger.WithError(err).Debug("Session ended")
			return
		}
		switch msg.Kind {
		case MsgTerminate:
			logger.Info("Termination signal received")
			return
		case MsgPhaseEnd:
			if err := writeMessage(conn, Message{Kind: MsgPhaseEnd}); err != nil {
				logger.WithError(err).Error("Failed to acknowledge phase end")
				return
			}
		case MsgData:
			if err := writeMessage(conn, msg); err != nil {
				logger.WithError(err).Error("Failed to echo frame")
				return
			}
			key = Advance(key)
		}
	}
}

// Close stops the accept loop by closing the listener. Connections already
// being served run to their own end.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.listener.Close()
}
