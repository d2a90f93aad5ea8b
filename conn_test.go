package latencytest

import (
	"net"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startStreamServer runs a stream responder on a free loopback port and
// returns the config a client should dial with. The server is shut down and
// its Serve error checked when the test ends.
func startStreamServer(t *testing.T) *Config {
	t.Helper()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.ReadTimeout = 5 * time.Second

	server, err := ListenStream(cfg)
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve()
	}()
	t.Cleanup(func() {
		require.NoError(t, server.Close())
		assert.NoError(t, <-serveErr)
	})
	return cfg
}

func TestStreamEchoRoundTrip(t *testing.T) {
	cfg := startStreamServer(t)
	client, err := DialStream(cfg)
	require.NoError(t, err)
	defer client.Close()

	for _, size := range []int{0, 1, 8, 512} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		require.NoError(t, client.SendData(payload))
		echo, err := client.RecvEcho()
		require.NoError(t, err, "echo for %d byte probe", size)
		assert.Equal(t, payload, echo, "echo must decrypt to the original %d bytes", size)
	}
	require.NoError(t, client.SendTerminate())
}

func TestStreamThroughputBurst(t *testing.T) {
	cfg := startStreamServer(t)
	client, err := DialStream(cfg)
	require.NoError(t, err)

	driver := NewDriver(nil)
	res, err := driver.RunThroughputTrial(client, 1024, 64)
	require.NoError(t, err)
	assert.Equal(t, 1024, res.Count)
	assert.Equal(t, 64, res.Size)
	assert.Greater(t, res.BitsPerSecond, 0.0)

	// The burst must leave nothing unread: a fresh probe right after the
	// phase-end handshake still round-trips cleanly.
	payload := []byte{1, 2, 3, 4}
	require.NoError(t, client.SendData(payload))
	echo, err := client.RecvEcho()
	require.NoError(t, err)
	assert.Equal(t, payload, echo)

	require.NoError(t, driver.Finish(client))
}

func TestStreamTerminateEndsSession(t *testing.T) {
	cfg := startStreamServer(t)
	client, err := DialStream(cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SendData([]byte("last words")))
	_, err = client.RecvEcho()
	require.NoError(t, err)

	require.NoError(t, client.SendTerminate())

	// The responder closes its side without replying; the next read sees
	// the closed connection, never another frame.
	cfg2 := *cfg
	cfg2.ReadTimeout = 2 * time.Second
	client.cfg = &cfg2
	_, err = client.Recv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead) || errors.Is(err, ErrIO), "got %v", err)

	// One session ending must not affect the next client.
	next, err := DialStream(cfg)
	require.NoError(t, err)
	defer next.Close()
	require.NoError(t, next.SendData([]byte{42}))
	echo, err := next.RecvEcho()
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, echo)
	require.NoError(t, next.SendTerminate())
}

func TestStreamKeyLockstep(t *testing.T) {
	// After N data messages the channel key must equal the seed advanced N
	// times; that is the whole synchronization contract.
	cfg := startStreamServer(t)
	client, err := DialStream(cfg)
	require.NoError(t, err)
	defer client.Close()

	want := cfg.Seed
	for n := 1; n <= 5; n++ {
		require.NoError(t, client.SendData([]byte("probe")))
		_, err := client.RecvEcho()
		require.NoError(t, err)
		want = Advance(want)
		assert.Equal(t, want, client.key, "key after %d messages", n)
	}
	require.NoError(t, client.SendTerminate())
}

func TestDialStreamRefused(t *testing.T) {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port

	_, err = DialStream(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectRefused), "got %v", err)
}

func TestStreamEchoMismatchIsFatal(t *testing.T) {
	// A responder that flips a payload byte must fail the probe run.
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.ReadTimeout = 2 * time.Second

	l, err := net.Listen("tcp", cfg.addr())
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		msg, err := readMessage(conn)
		if err != nil || msg.Kind != MsgData {
			return
		}
		msg.Payload[0] ^= 0xff
		writeMessage(conn, msg)
	}()

	client, err := DialStream(cfg)
	require.NoError(t, err)
	defer client.Close()

	driver := NewDriver(nil)
	_, err = driver.RunLatencyProbes(client, []int{8})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEchoMismatch), "got %v", err)
}
