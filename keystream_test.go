package latencytest

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceKnownValues(t *testing.T) {
	// Chain from the default seed, checked against the reference
	// implementation.
	key := DefaultSeed
	expected := []uint64{
		132100702508589007,
		14571250924493977904,
		3156334742818316866,
		1914567331323306758,
	}
	for i, want := range expected {
		key = Advance(key)
		assert.Equal(t, want, key, "advance step %d", i+1)
	}

	assert.Equal(t, uint64(0x27dc5c1b2d04284b), Advance(0xdeadbeefcafebabe))
}

func TestAdvanceDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		key := rng.Uint64()
		assert.Equal(t, Advance(key), Advance(key))
	}
}

func TestTransformInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	keys := []uint64{DefaultSeed, Advance(DefaultSeed), 0, 0xff, rng.Uint64()}
	for _, size := range []int{0, 1, 8, 512} {
		payload := make([]byte, size)
		_, err := rng.Read(payload)
		require.NoError(t, err)
		for _, key := range keys {
			masked := Transform(payload, key)
			require.Len(t, masked, size)
			assert.True(t, bytes.Equal(payload, Transform(masked, key)),
				"double transform of %d bytes under key %d must be the identity", size, key)
		}
	}
}

func TestTransformUsesLowByte(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	key := uint64(0xaabbccdd_112233_44)
	masked := Transform(payload, key)
	for i := range payload {
		assert.Equal(t, payload[i]^0x44, masked[i])
	}
}

func TestTransformEmptyInput(t *testing.T) {
	out := Transform(nil, DefaultSeed)
	assert.Empty(t, out)
}
