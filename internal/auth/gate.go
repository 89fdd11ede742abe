package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/settings"
)

// Connector is the channel surface the gate drives.
type Connector interface {
	// Connect (re)establishes the channel with token. Same-token calls on a
	// live connection are no-ops.
	Connect(ctx context.Context, token string) error
	// Disconnect tears the channel down. Safe to call at any time.
	Disconnect()
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger for the gate.
func WithLogger(logger *logging.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate owns the backend access token. It exchanges every new session
// credential, persists the result, and connects or disconnects the channel
// to match. Party state follows auth.token_changed on the bus.
type Gate struct {
	bus       *event.Bus
	exchanger Exchanger
	store     settings.Store
	connector Connector
	logger    *logging.Logger

	mu       sync.Mutex
	token    string
	gen      uint64
	cancel   context.CancelFunc
	baseCtx  context.Context
	stopBase context.CancelFunc
	subID    string

	// applyMu serializes the apply step so results land in generation order.
	applyMu sync.Mutex
	wg      sync.WaitGroup
}

// NewGate creates a Gate.
//
// All arguments must be non-nil. Passing nil will panic early to surface
// wiring bugs immediately.
func NewGate(bus *event.Bus, exchanger Exchanger, store settings.Store, connector Connector, opts ...GateOption) *Gate {
	if bus == nil {
		panic("auth: event.Bus must not be nil")
	}
	if exchanger == nil {
		panic("auth: Exchanger must not be nil")
	}
	if store == nil {
		panic("auth: settings.Store must not be nil")
	}
	if connector == nil {
		panic("auth: Connector must not be nil")
	}

	g := &Gate{
		bus:       bus,
		exchanger: exchanger,
		store:     store,
		connector: connector,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.baseCtx, g.stopBase = context.WithCancel(context.Background())
	return g
}

// Start subscribes the gate to credential changes.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subID != "" {
		return fmt.Errorf("auth: gate already started")
	}
	g.baseCtx, g.stopBase = context.WithCancel(ctx)
	g.subID = g.bus.Subscribe(event.TypeCredentialChanged, func(e event.Event) {
		if ce, ok := e.(event.CredentialChangedEvent); ok {
			g.OnCredential(ce.Credential)
		}
	})
	return nil
}

// Stop unsubscribes, cancels any exchange in flight and waits for it.
func (g *Gate) Stop() {
	g.mu.Lock()
	if g.subID != "" {
		g.bus.Unsubscribe(g.subID)
		g.subID = ""
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.stopBase()
	g.mu.Unlock()

	g.wg.Wait()
}

// wait blocks until every exchange started so far has finished.
func (g *Gate) wait() { g.wg.Wait() }

// AccessToken returns the current backend access token, or "".
func (g *Gate) AccessToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// Restore connects with the persisted access token, if any. It is a no-op
// once a credential has been seen.
func (g *Gate) Restore(ctx context.Context) {
	stored := g.store.Get().BackendAccessToken
	if stored == "" {
		return
	}

	g.applyMu.Lock()
	defer g.applyMu.Unlock()

	g.mu.Lock()
	if g.gen != 0 {
		g.mu.Unlock()
		return
	}
	g.token = stored
	g.mu.Unlock()

	info := Inspect(stored)
	g.logger.Info("restored persisted access token", info.LogArgs()...)
	g.bus.Publish(event.NewTokenChangedEvent(true, info.Fingerprint))
	if err := g.connector.Connect(ctx, stored); err != nil {
		g.logger.Warn("connect with persisted token failed", "error", err)
	}
}

// OnCredential handles a new session credential. It returns immediately;
// the exchange runs in the background and supersedes any earlier one.
func (g *Gate) OnCredential(credential string) {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	gen := g.gen
	ctx, cancel := context.WithCancel(g.baseCtx)
	g.cancel = cancel
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		g.exchange(ctx, gen, credential)
	}()
}

func (g *Gate) exchange(ctx context.Context, gen uint64, credential string) {
	if credential == "" {
		g.logger.Info("session credential cleared; resetting access token")
		g.apply(ctx, gen, "")
		return
	}

	g.logger.Debug("exchanging session credential", "generation", gen)
	token, err := g.exchanger.Exchange(ctx, credential)
	if ctx.Err() != nil || errors.IsCanceled(err) {
		g.logger.Debug("credential exchange superseded", "generation", gen)
		return
	}
	if err != nil {
		g.logger.Error("credential exchange failed", "error", err, "retryable", errors.IsRetryable(err))
		g.apply(ctx, gen, "")
		return
	}
	g.apply(ctx, gen, token)
}

// apply stores token and drives the channel, unless a newer credential
// arrived in the meantime.
func (g *Gate) apply(ctx context.Context, gen uint64, token string) {
	g.applyMu.Lock()
	defer g.applyMu.Unlock()

	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		g.logger.Debug("dropping stale exchange result", "generation", gen)
		return
	}
	g.token = token
	g.mu.Unlock()

	g.persist(token)

	info := Inspect(token)
	g.bus.Publish(event.NewTokenChangedEvent(token != "", info.Fingerprint))

	if token == "" {
		g.connector.Disconnect()
		return
	}
	g.logger.Info("access token stored", info.LogArgs()...)
	if err := g.connector.Connect(ctx, token); err != nil && !errors.IsCanceled(err) {
		g.logger.Warn("channel connect failed", "error", err)
	}
}

func (g *Gate) persist(token string) {
	s := g.store.Get()
	if s.BackendAccessToken == token {
		return
	}
	s.BackendAccessToken = token
	if err := g.store.Save(s); err != nil {
		g.logger.Error("persist access token failed", "error", err)
	}
}
