package channel

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/d2c-launcher/coordinator/internal/logging"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultSendBuffer     = 64
	defaultReconnectMax   = 30 * time.Second

	// writeTimeout bounds a single frame write.
	writeTimeout = 5 * time.Second
	// closeGrace bounds the polite disconnect on teardown.
	closeGrace = time.Second
)

// Option configures a Channel.
type Option func(*config)

type config struct {
	connectTimeout time.Duration
	sendBuffer     int
	reconnect      bool
	reconnectMax   time.Duration
	dialer         *websocket.Dialer
	logger         *logging.Logger
}

// WithConnectTimeout bounds dial plus namespace handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) {
		c.connectTimeout = d
	}
}

// WithSendBuffer sets how many outbound frames may queue before commands
// are dropped.
func WithSendBuffer(n int) Option {
	return func(c *config) {
		c.sendBuffer = n
	}
}

// WithReconnect enables re-dialing after an unexpected drop, backing off
// exponentially up to max.
func WithReconnect(enabled bool, max time.Duration) Option {
	return func(c *config) {
		c.reconnect = enabled
		c.reconnectMax = max
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithLogger sets the logger for the channel.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
