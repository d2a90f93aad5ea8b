package latencytest

import "github.com/pkg/errors"

const errPrefix = "latencytest: "

// Sentinel errors for everything that can go wrong during a measurement
// session. They are wrapped with operation context where they occur and
// matchable with errors.Is.
var (
	// ErrConnectTimeout is returned when the peer does not accept the
	// stream connection within Config.ConnectTimeout.
	ErrConnectTimeout = errors.New(errPrefix + "connection attempt timed out")
	// ErrConnectRefused is returned when the transport rejects the
	// connection attempt immediately.
	ErrConnectRefused = errors.New(errPrefix + "connection refused by peer")
	// ErrIO covers transport-level read and write failures.
	ErrIO = errors.New(errPrefix + "transport read/write failed")
	// ErrShortRead is returned when the peer closes the connection in the
	// middle of a frame.
	ErrShortRead = errors.New(errPrefix + "peer closed connection mid-frame")
	// ErrReadTimeout is returned when a stream read exceeds
	// Config.ReadTimeout, which indicates a stalled peer.
	ErrReadTimeout = errors.New(errPrefix + "read deadline exceeded")
	// ErrEchoMismatch is returned when a decrypted echo does not equal the
	// probe that was sent. Fatal for the measurement run.
	ErrEchoMismatch = errors.New(errPrefix + "echoed payload does not match original")
	// ErrProtocol is returned on a malformed or unexpected control message,
	// for example a missing phase-end acknowledgment.
	ErrProtocol = errors.New(errPrefix + "unexpected control message")
	// ErrPayloadTooLarge is returned when a payload does not fit the
	// transport's message size limit.
	ErrPayloadTooLarge = errors.New(errPrefix + "payload exceeds maximum message size")
	// ErrNoResponse is returned when a datagram probe receives no echo
	// within Config.ReadTimeout. Callers record it and continue; it is the
	// only non-fatal member of this taxonomy.
	ErrNoResponse = errors.New(errPrefix + "no response within timeout")
)
