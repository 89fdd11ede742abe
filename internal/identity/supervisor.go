package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raulk/clock"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/model"
)

// Supervisor owns the identity provider status, the resolved identity and
// the session credential. It is the only writer of all three.
type Supervisor struct {
	bus        *event.Bus
	helper     HelperQuerier
	scanner    ProcessScanner
	activeUser ActiveUserReader
	clock      clock.Clock
	logger     *logging.Logger

	pollInterval    time.Duration
	maxBackoff      time.Duration
	shutdownJoin    time.Duration
	providerProcess string

	mu         sync.RWMutex
	status     model.IdentityStatus
	identity   *model.Identity
	credential string

	// Loop-private; only step touches these.
	lastResolved uint64
	streak       int

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSupervisor creates a Supervisor that queries helper for new users.
//
// The bus and helper must be non-nil. Passing nil will panic early to
// surface wiring bugs immediately.
func NewSupervisor(bus *event.Bus, helper HelperQuerier, opts ...Option) *Supervisor {
	if bus == nil {
		panic("identity: event.Bus must not be nil")
	}
	if helper == nil {
		panic("identity: HelperQuerier must not be nil")
	}

	cfg := &config{
		pollInterval:    defaultPollInterval,
		maxBackoff:      defaultMaxBackoff,
		shutdownJoin:    defaultShutdownJoin,
		providerProcess: DefaultProviderProcess,
		logger:          logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.maxBackoff <= 0 {
		cfg.maxBackoff = defaultMaxBackoff
	}
	if cfg.shutdownJoin <= 0 {
		cfg.shutdownJoin = defaultShutdownJoin
	}
	if cfg.providerProcess == "" {
		cfg.providerProcess = DefaultProviderProcess
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}
	if cfg.scanner == nil {
		cfg.scanner = NewSysinfoScanner()
	}
	if cfg.activeUser == nil {
		cfg.activeUser = NewActiveUserReader(cfg.logger)
	}

	return &Supervisor{
		bus:             bus,
		helper:          helper,
		scanner:         cfg.scanner,
		activeUser:      cfg.activeUser,
		clock:           cfg.clock,
		logger:          cfg.logger,
		pollInterval:    cfg.pollInterval,
		maxBackoff:      cfg.maxBackoff,
		shutdownJoin:    cfg.shutdownJoin,
		providerProcess: cfg.providerProcess,
		status:          model.StatusNotRunning,
	}
}

// Start launches the polling loop. It returns immediately; call Stop to
// shut down.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.started {
		return fmt.Errorf("identity: supervisor already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go func(done chan struct{}) {
		defer close(done)
		s.run(ctx)
	}(s.done)

	s.logger.Info("identity supervisor started",
		"poll_interval", s.pollInterval,
		"provider", s.providerProcess,
	)
	return nil
}

// Stop cancels the loop and waits for it to exit, but never longer than
// the shutdown join bound. It reports whether the loop exited in time and
// is safe to call multiple times.
func (s *Supervisor) Stop() bool {
	s.lifecycle.Lock()
	if !s.started {
		s.lifecycle.Unlock()
		return true
	}
	s.cancel()
	done := s.done
	s.started = false
	s.lifecycle.Unlock()

	// The join bound is wall-clock even when a mock clock drives the loop.
	timer := time.NewTimer(s.shutdownJoin)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		s.logger.Warn("identity supervisor did not stop in time", "join_bound", s.shutdownJoin)
		return false
	}
}

// Snapshot returns the current status, identity and credential.
func (s *Supervisor) Snapshot() (model.IdentityStatus, *model.Identity, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.identity, s.credential
}

func (s *Supervisor) run(ctx context.Context) {
	for {
		wait := s.step(ctx)
		if ctx.Err() != nil {
			return
		}

		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// step runs one tick and returns how long to wait before the next one.
// It never panics; a failing tick degrades to Offline with all derived
// state cleared.
func (s *Supervisor) step(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("identity tick panicked", "panic", fmt.Sprintf("%v", r))
			s.lastResolved = 0
			s.setStatus(model.StatusOffline)
			s.clear()
			wait = s.pollInterval
		}
	}()

	running, err := s.scanner.Running(ctx, s.providerProcess)
	if err != nil {
		s.logger.Warn("process scan failed", "error", err)
		s.lastResolved = 0
		s.setStatus(model.StatusOffline)
		s.clear()
		return s.pollInterval
	}

	var user uint64
	if running {
		user = s.activeUser.ActiveUser()
	}
	status := statusFor(running, user)
	s.setStatus(status)

	if status != model.StatusRunning {
		s.lastResolved = 0
		s.streak = 0
		s.clear()
		return s.pollInterval
	}
	if user == s.lastResolved {
		return s.pollInterval
	}

	snap, err := s.helper.Query(ctx)
	if ctx.Err() != nil {
		return s.pollInterval
	}
	var (
		id         *model.Identity
		credential string
	)
	if err == nil {
		id, credential, err = snap.Resolve()
	}
	if err != nil {
		s.streak++
		delay := BackoffDelay(s.streak, s.maxBackoff)
		s.logger.Warn("identity query failed",
			"error", err,
			"streak", s.streak,
			"retry_in", max(delay, s.pollInterval),
		)
		s.lastResolved = 0
		s.clear()
		return max(delay, s.pollInterval)
	}

	s.setIdentity(id)
	if credential == "" {
		// Profile resolved but the provider has not issued a ticket yet.
		s.lastResolved = 0
		s.setCredential("")
		s.logger.Debug("identity resolved without credential", "account_id", id.AccountID())
		return s.pollInterval
	}

	s.lastResolved = user
	s.streak = 0
	s.setCredential(credential)
	s.logger.Info("identity resolved", "account_id", id.AccountID(), "name", id.Name)
	return s.pollInterval
}

func statusFor(running bool, user uint64) model.IdentityStatus {
	switch {
	case !running:
		return model.StatusNotRunning
	case user == 0:
		return model.StatusOffline
	default:
		return model.StatusRunning
	}
}

func (s *Supervisor) setStatus(next model.IdentityStatus) {
	s.mu.Lock()
	prev := s.status
	s.status = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	s.logger.Info("identity status changed", "from", prev.String(), "to", next.String())
	s.bus.Publish(event.NewIdentityStatusChangedEvent(prev, next))
}

func (s *Supervisor) setIdentity(id *model.Identity) {
	s.mu.Lock()
	if model.IdentityEqual(s.identity, id) {
		s.mu.Unlock()
		return
	}
	s.identity = id
	s.mu.Unlock()

	s.bus.Publish(event.NewIdentityChangedEvent(id))
}

func (s *Supervisor) setCredential(credential string) {
	s.mu.Lock()
	if s.credential == credential {
		s.mu.Unlock()
		return
	}
	s.credential = credential
	s.mu.Unlock()

	s.bus.Publish(event.NewCredentialChangedEvent(credential))
}

// clear drops identity and credential, publishing each only if it was set.
func (s *Supervisor) clear() {
	s.setIdentity(nil)
	s.setCredential("")
}

// IsNotRunning reports whether err means the provider was not running
// when queried, which is a normal state rather than a failure.
func IsNotRunning(err error) bool {
	return errors.Is(err, errors.ErrProviderNotRunning)
}
