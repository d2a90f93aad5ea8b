package latencytest

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// MaxDatagramSize bounds one datagram message. It matches the responder's
// receive buffer; larger messages would be truncated on the wire.
const MaxDatagramSize = 1024

// terminationMarker ends a datagram session. It is sent and compared as a
// literal, never encrypted, so it is recognizable regardless of how far the
// responder's key has advanced.
var terminationMarker = []byte("END_OF_MESSAGES")

// PacketConn is the client side of the connectionless echo channel. Each
// datagram is one complete message; the transport delivers the boundaries,
// so there is no length prefix.
type PacketConn struct {
	conn *net.UDPConn
	key  uint64
	cfg  *Config
}

// DialPacket opens a datagram channel towards the responder. Nothing is
// sent on the wire until the first message.
func DialPacket(cfg *Config) (*PacketConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", cfg.addr())
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "resolve %s: %v", cfg.addr(), err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "dial %s: %v", cfg.addr(), err)
	}
	return &PacketConn{conn: conn, key: cfg.Seed, cfg: cfg}, nil
}

// SendData masks the payload with the current key, rotates the key and
// sends one datagram. No acknowledgment is implied at this layer.
func (c *PacketConn) SendData(payload []byte) error {
	if len(payload) > MaxDatagramSize {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes, datagram limit is %d", len(payload), MaxDatagramSize)
	}
	buf := Transform(payload, c.key)
	c.key = Advance(c.key)
	if _, err := c.conn.Write(buf); err != nil {
		return errors.Wrapf(ErrIO, "send datagram: %v", err)
	}
	return nil
}

// RecvEcho blocks up to cfg.ReadTimeout for the echo of a single probe,
// then unmasks it with the current key and rotates the key. A timeout is
// reported as ErrNoResponse; callers record it and keep probing.
func (c *PacketConn) RecvEcho() ([]byte, error) {
	if c.cfg.ReadTimeout != 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return nil, errors.Wrapf(ErrIO, "set read deadline: %v", err)
		}
	}
	buf := make([]byte, MaxDatagramSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrNoResponse
		}
		return nil, errors.Wrapf(ErrIO, "receive datagram: %v", err)
	}
	payload := Transform(buf[:n], c.key)
	c.key = Advance(c.key)
	return payload, nil
}

// FinishBurst is a no-op. Datagram bursts are fire-and-forget: the burst is
// complete once the last datagram has left the socket, and no echoes are
// awaited. The key still rotates once per sent datagram, so the responder's
// additional per-echo rotation makes the two sides diverge after a burst;
// that matches the reference behavior and is harmless because the only
// exchange after a burst is the unencrypted termination marker.
func (c *PacketConn) FinishBurst(int) error { return nil }

// SendTerminate sends the literal termination marker as a final datagram.
// There is no acknowledgment; the sender proceeds immediately.
func (c *PacketConn) SendTerminate() error {
	if _, err := c.conn.Write(terminationMarker); err != nil {
		return errors.Wrapf(ErrIO, "send termination marker: %v", err)
	}
	return nil
}

// Reliable reports that echoes may be lost; probe timeouts are recorded
// rather than treated as failures, and echoes are not verified.
func (c *PacketConn) Reliable() bool { return false }

func (c *PacketConn) Close() error {
	return c.conn.Close()
}
