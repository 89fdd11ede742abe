// Package app assembles the coordinator: identity supervisor, credential
// gate, Game Coordinator channel, backend client and session state
// machine, all sharing one event bus.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/d2c-launcher/coordinator/internal/auth"
	"github.com/d2c-launcher/coordinator/internal/backend"
	"github.com/d2c-launcher/coordinator/internal/channel"
	"github.com/d2c-launcher/coordinator/internal/config"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/identity"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/session"
	"github.com/d2c-launcher/coordinator/internal/settings"
)

// Option customizes how New builds the coordinator. The zero set of
// options produces the production wiring.
type Option func(*options)

type options struct {
	logger       *logging.Logger
	store        settings.Store
	helper       identity.HelperQuerier
	httpClient   *http.Client
	identityOpts []identity.Option
	channelOpts  []channel.Option
	sessionOpts  []session.Option
}

// WithLogger sets the root logger. Each component gets its own child.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStore replaces the settings file in the data directory.
func WithStore(store settings.Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithHelper replaces the identity helper executable.
func WithHelper(helper identity.HelperQuerier) Option {
	return func(o *options) {
		if helper != nil {
			o.helper = helper
		}
	}
}

// WithHTTPClient sets the client used for the exchange and REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithIdentityOptions appends supervisor options after the configured ones.
func WithIdentityOptions(opts ...identity.Option) Option {
	return func(o *options) { o.identityOpts = append(o.identityOpts, opts...) }
}

// WithChannelOptions appends channel options after the configured ones.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(o *options) { o.channelOpts = append(o.channelOpts, opts...) }
}

// WithSessionOptions appends coordinator options after the configured ones.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// App is the running coordinator.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	bus    *event.Bus
	store  settings.Store

	supervisor *identity.Supervisor
	gate       *auth.Gate
	channel    *channel.Channel
	backend    *backend.Client
	session    *session.Coordinator

	lifecycle sync.Mutex
	started   bool
	traceID   string
	lock      *Lock
}

// New builds every component from cfg without starting anything.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	o := options{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = settings.NewFileStore(cfg.Paths.ResolveDataDir())
	}
	if o.helper == nil {
		o.helper = identity.NewExecHelper(cfg.Identity.ResolveHelperPath(),
			identity.WithHelperTimeout(cfg.Identity.HelperTimeout()),
			identity.WithHelperLogger(o.logger.WithComponent("helper")),
		)
	}

	bus := event.NewBus(event.WithBusLogger(o.logger.WithComponent("bus")))

	exchangerOpts := []auth.ExchangerOption{auth.WithTimeout(cfg.Auth.Timeout())}
	backendOpts := []backend.Option{
		backend.WithUserCacheSize(cfg.Session.LookupCacheSize),
		backend.WithLogger(o.logger.WithComponent("backend")),
	}
	if o.httpClient != nil {
		exchangerOpts = append(exchangerOpts, auth.WithHTTPClient(o.httpClient))
		backendOpts = append(backendOpts, backend.WithHTTPClient(o.httpClient))
	}

	exchanger, err := auth.NewHTTPExchanger(cfg.Auth.BaseURL, cfg.Auth.ExchangePath, exchangerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create credential exchanger: %w", err)
	}
	client, err := backend.New(cfg.Auth.BaseURL, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	chOpts := append([]channel.Option{
		channel.WithConnectTimeout(cfg.Channel.ConnectTimeout()),
		channel.WithSendBuffer(cfg.Channel.SendBuffer),
		channel.WithReconnect(cfg.Channel.Reconnect, cfg.Channel.ReconnectMax()),
		channel.WithLogger(o.logger.WithComponent("channel")),
	}, o.channelOpts...)
	ch, err := channel.New(bus, cfg.Channel.SocketURL, chOpts...)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	gate := auth.NewGate(bus, exchanger, o.store, ch, auth.WithLogger(o.logger.WithComponent("auth")))

	idOpts := append([]identity.Option{
		identity.WithPollInterval(cfg.Identity.PollInterval()),
		identity.WithMaxBackoff(cfg.Identity.MaxBackoff()),
		identity.WithShutdownJoin(cfg.Identity.ShutdownJoin()),
		identity.WithProviderProcess(cfg.Identity.ProviderProcess),
		identity.WithLogger(o.logger.WithComponent("identity")),
	}, o.identityOpts...)
	supervisor := identity.NewSupervisor(bus, o.helper, idOpts...)

	sessOpts := append([]session.Option{
		session.WithRefreshInterval(cfg.Session.PartyRefreshInterval()),
		session.WithInviteTimeout(cfg.Session.InviteTimeout()),
		session.WithSearchDebounce(cfg.Session.InviteSearchDebounce()),
		session.WithSearchLimit(cfg.Session.InviteSearchLimit),
		session.WithMaxPartySize(cfg.Session.MaxPartySize),
		session.WithLogger(o.logger.WithComponent("session")),
	}, o.sessionOpts...)
	coordinator := session.NewCoordinator(bus, ch, client, gate, sessOpts...)

	return &App{
		cfg:        cfg,
		logger:     o.logger,
		bus:        bus,
		store:      o.store,
		supervisor: supervisor,
		gate:       gate,
		channel:    ch,
		backend:    client,
		session:    coordinator,
	}, nil
}

// Start takes the data-directory instance lock, then brings the components
// up consumers first, so no event published by a producer is missed. A
// persisted token connects the channel before the identity provider is
// first polled.
func (a *App) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.started {
		return fmt.Errorf("app: already started")
	}

	lock, err := AcquireLock(a.cfg.Paths.ResolveDataDir(), a.logger.WithComponent("lock"))
	if err != nil {
		return err
	}
	a.lock = lock
	a.traceID = a.bus.SubscribeAll(a.trace)

	if err := a.session.Start(ctx); err != nil {
		a.abortStart()
		return fmt.Errorf("start session: %w", err)
	}
	if err := a.gate.Start(ctx); err != nil {
		a.session.Stop()
		a.abortStart()
		return fmt.Errorf("start auth gate: %w", err)
	}
	a.gate.Restore(ctx)
	if err := a.supervisor.Start(ctx); err != nil {
		a.gate.Stop()
		a.session.Stop()
		a.abortStart()
		return fmt.Errorf("start identity supervisor: %w", err)
	}

	a.started = true
	a.logger.Info("coordinator started",
		"socket_url", a.channel.Endpoint(),
		"api", a.backend.BaseURL(),
	)
	return nil
}

// Stop shuts down in reverse start order. It is safe to call multiple
// times.
func (a *App) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if !a.started {
		return
	}
	a.started = false

	if !a.supervisor.Stop() {
		a.logger.Warn("identity supervisor left running")
	}
	a.gate.Stop()
	a.channel.Close()
	a.session.Stop()
	a.bus.Unsubscribe(a.traceID)
	if err := a.lock.Release(); err != nil {
		a.logger.Warn("failed to release instance lock", "error", err)
	}
	a.lock = nil
	a.logger.Info("coordinator stopped")
}

func (a *App) abortStart() {
	a.bus.Unsubscribe(a.traceID)
	_ = a.lock.Release()
	a.lock = nil
}

// trace logs the coordinator's coarse transitions.
func (a *App) trace(e event.Event) {
	switch ev := e.(type) {
	case event.IdentityStatusChangedEvent:
		a.logger.Info("identity status", "from", ev.Previous, "to", ev.Current)
	case event.TokenChangedEvent:
		a.logger.Info("access token changed", "present", ev.HasToken, "fingerprint", ev.Fingerprint)
	case event.ConnectionChangedEvent:
		a.logger.Info("channel state", "from", ev.Previous, "to", ev.Current)
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Bus returns the shared event bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Session returns the session state machine.
func (a *App) Session() *session.Coordinator { return a.session }

// Gate returns the credential exchange gate.
func (a *App) Gate() *auth.Gate { return a.gate }

// Channel returns the Game Coordinator channel.
func (a *App) Channel() *channel.Channel { return a.channel }

// Backend returns the REST client.
func (a *App) Backend() *backend.Client { return a.backend }

// Identity returns the identity supervisor.
func (a *App) Identity() *identity.Supervisor { return a.supervisor }
