package latencytest

import (
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// StreamConn is the client side of the connection-oriented echo channel. It
// owns the session's key state; every data message sent through it rotates
// the key once, which keeps it in lockstep with the responder's own
// per-message rotation.
type StreamConn struct {
	conn net.Conn
	key  uint64
	cfg  *Config
}

// DialStream connects to the stream responder within cfg.ConnectTimeout.
func DialStream(cfg *Config) (*StreamConn, error) {
	conn, err := net.DialTimeout("tcp", cfg.addr(), cfg.ConnectTimeout)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, errors.Wrapf(ErrConnectTimeout, "dial %s", cfg.addr())
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, errors.Wrapf(ErrConnectRefused, "dial %s", cfg.addr())
		}
		return nil, errors.Wrapf(ErrIO, "dial %s: %v", cfg.addr(), err)
	}
	return &StreamConn{conn: conn, key: cfg.Seed, cfg: cfg}, nil
}

// SendData rotates the key, masks the payload with it and writes one data
// frame. The rotated key stays current, so the raw bytes the responder
// echoes back decrypt under it.
func (c *StreamConn) SendData(payload []byte) error {
	c.key = Advance(c.key)
	return writeMessage(c.conn, Message{Kind: MsgData, Payload: Transform(payload, c.key)})
}

// Recv reads and classifies the next frame without touching the key.
func (c *StreamConn) Recv() (Message, error) {
	if err := c.setReadDeadline(); err != nil {
		return Message{}, err
	}
	return readMessage(c.conn)
}

// RecvEcho reads the next frame and unmasks its payload with the current
// key. A zero-length probe comes back as a zero-length frame, which the
// codec classifies as phase-end; it is treated as an empty echo here.
func (c *StreamConn) RecvEcho() ([]byte, error) {
	msg, err := c.Recv()
	if err != nil {
		return nil, err
	}
	switch msg.Kind {
	case MsgData:
		return Transform(msg.Payload, c.key), nil
	case MsgPhaseEnd:
		return []byte{}, nil
	default:
		return nil, errors.Wrapf(ErrProtocol, "expected data echo, got message kind %d", msg.Kind)
	}
}

// FinishBurst drains the count echoes of a throughput burst, then performs
// the phase-end handshake: one zero-length frame out, exactly one back as
// acknowledgment.
func (c *StreamConn) FinishBurst(count int) error {
	for i := 0; i < count; i++ {
		msg, err := c.Recv()
		if err != nil {
			return err
		}
		if msg.Kind != MsgData {
			return errors.Wrapf(ErrProtocol, "expected echo %d of %d, got message kind %d", i+1, count, msg.Kind)
		}
	}
	if err := c.SendPhaseEnd(); err != nil {
		return err
	}
	msg, err := c.Recv()
	if err != nil {
		return err
	}
	if msg.Kind != MsgPhaseEnd {
		return errors.Wrapf(ErrProtocol, "expected phase-end acknowledgment, got message kind %d", msg.Kind)
	}
	return nil
}

// SendPhaseEnd writes a zero-length frame signaling the end of a throughput
// burst.
func (c *StreamConn) SendPhaseEnd() error {
	return writeMessage(c.conn, Message{Kind: MsgPhaseEnd})
}

// SendTerminate writes the termination sentinel. This is the only clean way
// to end a stream session; the responder closes its side without replying.
func (c *StreamConn) SendTerminate() error {
	return writeMessage(c.conn, Message{Kind: MsgTerminate})
}

// Reliable reports that this transport delivers every echo and that echoes
// are verified against the probe.
func (c *StreamConn) Reliable() bool { return true }

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) setReadDeadline() error {
	if c.cfg.ReadTimeout == 0 {
		return nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return errors.Wrapf(ErrIO, "set read deadline: %v", err)
	}
	return nil
}
