package identity

import (
	"time"

	"github.com/raulk/clock"

	"github.com/d2c-launcher/coordinator/internal/logging"
)

const (
	// defaultPollInterval is the fixed supervisor tick cadence.
	defaultPollInterval = time.Second
	// defaultMaxBackoff caps the helper failure backoff.
	defaultMaxBackoff = 30 * time.Second
	// defaultShutdownJoin bounds how long Stop waits for the loop.
	defaultShutdownJoin = 500 * time.Millisecond
	// DefaultProviderProcess is the provider's process name.
	DefaultProviderProcess = "steam"
)

// Option configures a Supervisor.
type Option func(*config)

type config struct {
	pollInterval    time.Duration
	maxBackoff      time.Duration
	shutdownJoin    time.Duration
	providerProcess string
	scanner         ProcessScanner
	activeUser      ActiveUserReader
	clock           clock.Clock
	logger          *logging.Logger
}

// WithPollInterval sets the tick cadence.
// A zero or negative value is replaced with the default (1s).
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.pollInterval = d
	}
}

// WithMaxBackoff caps the failure backoff.
// A zero or negative value is replaced with the default (30s).
func WithMaxBackoff(d time.Duration) Option {
	return func(c *config) {
		c.maxBackoff = d
	}
}

// WithShutdownJoin bounds how long Stop waits for the loop to exit.
func WithShutdownJoin(d time.Duration) Option {
	return func(c *config) {
		c.shutdownJoin = d
	}
}

// WithProviderProcess sets the process name the scanner looks for.
func WithProviderProcess(name string) Option {
	return func(c *config) {
		c.providerProcess = name
	}
}

// WithScanner replaces the process-table scanner.
func WithScanner(s ProcessScanner) Option {
	return func(c *config) {
		c.scanner = s
	}
}

// WithActiveUserReader replaces the active-user marker reader.
func WithActiveUserReader(r ActiveUserReader) Option {
	return func(c *config) {
		c.activeUser = r
	}
}

// WithClock sets the clock used for the tick and backoff waits.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

// WithLogger sets the logger for the supervisor.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
