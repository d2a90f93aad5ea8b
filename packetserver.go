package latencytest

import (
	"bytes"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
)

// PacketServer is the connectionless echo responder. A single process-wide
// key serves every datagram in arrival order, so one responder instance is
// only valid for one client's session at a time, and the termination marker
// from any sender stops the whole serve loop. Both are accepted constraints
// of the wire protocol, not oversights; per-sender key tables would change
// the key-rotation timing on the wire.
type PacketServer struct {
	conn   *net.UDPConn
	cfg    *Config
	logger Logger
	key    uint64
	closed int32
}

// ListenPacket binds the responder to cfg's address.
func ListenPacket(cfg *Config) (*PacketServer, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.addr())
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "resolve %s: %v", cfg.addr(), err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "listen on %s: %v", cfg.addr(), err)
	}
	return &PacketServer{conn: conn, cfg: cfg, logger: cfg.logger(), key: cfg.Seed}, nil
}

// Addr returns the bound socket address.
func (s *PacketServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve echoes datagrams until the termination marker arrives or Close is
// called. Each data message costs two key rotations: one after decrypting,
// one after re-encrypting with the rotated key, mirroring the client's
// rotation at send and at receive.
func (s *PacketServer) Serve() error {
	defer s.Close()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			return errors.Wrapf(ErrIO, "receive datagram: %v", err)
		}
		// The marker is matched before decryption; it travels in the clear.
		if bytes.Equal(buf[:n], terminationMarker) {
			s.logger.WithField("remoteAddr", addr).Info("Termination signal received")
			return nil
		}
		plain := Transform(buf[:n], s.key)
		s.key = Advance(s.key)
		echo := Transform(plain, s.key)
		s.key = Advance(s.key)
		if _, err := s.conn.WriteToUDP(echo, addr); err != nil {
			s.logger.WithError(err).WithField("remoteAddr", addr).Error("Failed to send echo")
			return errors.Wrapf(ErrIO, "send echo: %v", err)
		}
	}
}

// Close releases the socket, unblocking a pending receive.
func (s *PacketServer) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.conn.Close()
}
