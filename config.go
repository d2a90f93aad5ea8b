package latencytest

import (
	"net"
	"strconv"
	"time"
)

// DefaultPort is the port the echo responders listen on when none is
// configured.
const DefaultPort = 26881

const (
	// DefaultConnectTimeout bounds the stream connection attempt.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultReadTimeout bounds every blocking read.
	DefaultReadTimeout = 10 * time.Second
)

// Config carries the endpoint and timing settings shared by both transports
// and both roles.
type Config struct {
	// Host is the remote host for clients and the bind address for
	// responders. An empty host binds all interfaces.
	Host string
	Port int
	// ConnectTimeout is how long a stream connection attempt may take
	// before it fails with ErrConnectTimeout.
	ConnectTimeout time.Duration
	// ReadTimeout is the deadline applied to every blocking read. Zero
	// disables the deadline. On the stream transport an expired deadline is
	// fatal for the session; on datagram probes it becomes ErrNoResponse.
	ReadTimeout time.Duration
	// Seed initializes the XOR key on this side of the session. Both sides
	// must use the same value.
	Seed uint64
	// Logger receives structured session events. Nil disables logging.
	Logger Logger
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		Seed:           DefaultSeed,
		Logger:         dummyLogger{},
	}
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) logger() Logger {
	if c.Logger == nil {
		return dummyLogger{}
	}
	return c.Logger
}
