package session

import (
	"time"

	"github.com/raulk/clock"

	"github.com/d2c-launcher/coordinator/internal/logging"
)

const (
	defaultRefreshInterval = 10 * time.Second
	defaultInviteTimeout   = 60 * time.Second
	defaultSearchDebounce  = 300 * time.Millisecond
	defaultSearchLimit     = 25
	defaultMaxPartySize    = 5
	queueTickInterval      = time.Second
)

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	refreshInterval time.Duration
	inviteTimeout   time.Duration
	searchDebounce  time.Duration
	searchLimit     int
	maxPartySize    int
	location        *time.Location
	clock           clock.Clock
	logger          *logging.Logger
}

// WithRefreshInterval sets the periodic party refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *config) {
		c.refreshInterval = d
	}
}

// WithInviteTimeout sets how long an unanswered invite stays pending.
func WithInviteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.inviteTimeout = d
	}
}

// WithSearchDebounce sets the quiet period before a candidate search runs.
func WithSearchDebounce(d time.Duration) Option {
	return func(c *config) {
		c.searchDebounce = d
	}
}

// WithSearchLimit caps the number of candidates requested per search.
func WithSearchLimit(n int) Option {
	return func(c *config) {
		c.searchLimit = n
	}
}

// WithMaxPartySize sets the roster size at which invites are refused.
func WithMaxPartySize(n int) Option {
	return func(c *config) {
		c.maxPartySize = n
	}
}

// WithLocation sets the zone ban expiry dates are formatted in.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		c.location = loc
	}
}

// WithClock sets the clock driving timers and tickers.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

// WithLogger sets the logger for the coordinator.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
