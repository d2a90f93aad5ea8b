// Package latencytest implements an encrypted echo protocol for measuring
// round-trip latency and throughput between a client and a responder over
// TCP and UDP. Payloads are obscured with a repeating single-byte XOR mask
// derived from a 64-bit key that both endpoints rotate in lockstep, one
// rotation per message. The mask is obfuscation, not security.
package latencytest

// DefaultSeed is the key value both endpoints start a session from. The
// protocol has no key exchange; client and responder must agree on the seed
// out of band.
const DefaultSeed uint64 = 123456789

// Advance mixes a key into its successor using an xorshift variant with the
// shift triple (13, 7, 17). It is pure and bit-identical across
// implementations, which is what keeps both endpoints synchronized without
// ever exchanging key state. There is no way to resynchronize once the two
// sides disagree on how many messages have passed.
func Advance(key uint64) uint64 {
	key ^= key << 13
	key ^= key >> 7
	key ^= key << 17
	return key
}

// Transform applies the low byte of key as a repeating XOR mask and returns
// the masked copy. Applying it twice with the same key yields the input
// again, so encryption and decryption are the same operation.
func Transform(payload []byte, key uint64) []byte {
	out := make([]byte, len(payload))
	mask := byte(key)
	for i, b := range payload {
		out[i] = b ^ mask
	}
	return out
}
