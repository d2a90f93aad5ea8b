package latencytest

import (
	"encoding/binary"
	"io"
	"math"
	"net"

	"github.com/pkg/errors"
)

// MessageKind classifies a decoded frame of the stream protocol. The raw
// length field is inspected exactly once, in readMessage; everything above
// the codec works with these tags.
type MessageKind uint8

const (
	// MsgData carries an encrypted payload.
	MsgData MessageKind = iota
	// MsgPhaseEnd marks the end of a throughput burst. The responder
	// answers it with another phase-end frame as acknowledgment.
	MsgPhaseEnd
	// MsgTerminate ends the session. It is never acknowledged.
	MsgTerminate
)

// Message is one decoded unit of the stream protocol. Payload is nil for
// the control kinds.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Stream wire format: a 4-byte signed big-endian length, followed by that
// many payload bytes when the length is positive. Zero means phase-end, the
// sentinel -1 means terminate. No version field, no magic bytes.
const (
	frameHeaderSize = 4

	terminateLength int32 = -1
	phaseEndLength  int32 = 0

	// MaxPayloadSize is the largest payload the length field can express.
	MaxPayloadSize = math.MaxInt32
)

func writeMessage(w io.Writer, msg Message) error {
	var length int32
	switch msg.Kind {
	case MsgData:
		if len(msg.Payload) > MaxPayloadSize {
			return errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(msg.Payload))
		}
		length = int32(len(msg.Payload))
	case MsgPhaseEnd:
		length = phaseEndLength
	case MsgTerminate:
		length = terminateLength
	default:
		return errors.Wrapf(ErrProtocol, "unknown message kind %d", msg.Kind)
	}
	buf := make([]byte, frameHeaderSize+len(msg.Payload))
	binary.BigEndian.PutUint32(buf, uint32(length))
	copy(buf[frameHeaderSize:], msg.Payload)
	if _, err := w.Write(buf); err != nil {
		return wrapTransportErr(err, "write frame")
	}
	return nil
}

func readMessage(r io.Reader) (Message, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Message{}, wrapTransportErr(err, "read frame header")
	}
	length := int32(binary.BigEndian.Uint32(header))
	switch {
	case length == terminateLength:
		return Message{Kind: MsgTerminate}, nil
	case length == phaseEndLength:
		return Message{Kind: MsgPhaseEnd}, nil
	case length < 0:
		return Message{}, errors.Wrapf(ErrProtocol, "invalid frame length %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, wrapTransportErr(err, "read frame payload")
	}
	return Message{Kind: MsgData, Payload: payload}, nil
}

// wrapTransportErr maps a raw transport error onto the error taxonomy while
// keeping the operation context.
func wrapTransportErr(err error, op string) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrShortRead, "%s: %v", op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.Wrapf(ErrReadTimeout, "%s: %v", op, err)
	}
	return errors.Wrapf(ErrIO, "%s: %v", op, err)
}
