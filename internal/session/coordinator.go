package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/raulk/clock"
	"golang.org/x/sync/singleflight"

	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/model"
)

var errNotRunning = fmt.Errorf("session: coordinator not running")

// Coordinator is the session state machine. All state below loop is owned
// by the run goroutine.
type Coordinator struct {
	bus       *event.Bus
	commander Commander
	backend   Backend
	tokens    TokenSource
	clock     clock.Clock
	logger    *logging.Logger
	cfg       config

	qmu   sync.Mutex
	queue []func()
	wake  chan struct{}

	lifecycle sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	subID     string
	wg        sync.WaitGroup

	refresh singleflight.Group

	loop state

	snapMu sync.RWMutex
	snap   State
}

// NewCoordinator creates a Coordinator.
//
// All arguments must be non-nil. Passing nil will panic early to surface
// wiring bugs immediately.
func NewCoordinator(bus *event.Bus, commander Commander, backend Backend, tokens TokenSource, opts ...Option) *Coordinator {
	if bus == nil {
		panic("session: event.Bus must not be nil")
	}
	if commander == nil {
		panic("session: Commander must not be nil")
	}
	if backend == nil {
		panic("session: Backend must not be nil")
	}
	if tokens == nil {
		panic("session: TokenSource must not be nil")
	}

	cfg := config{
		refreshInterval: defaultRefreshInterval,
		inviteTimeout:   defaultInviteTimeout,
		searchDebounce:  defaultSearchDebounce,
		searchLimit:     defaultSearchLimit,
		maxPartySize:    defaultMaxPartySize,
		location:        time.Local,
		logger:          logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.refreshInterval <= 0 {
		cfg.refreshInterval = defaultRefreshInterval
	}
	if cfg.inviteTimeout <= 0 {
		cfg.inviteTimeout = defaultInviteTimeout
	}
	if cfg.searchDebounce < 0 {
		cfg.searchDebounce = defaultSearchDebounce
	}
	if cfg.searchLimit <= 0 {
		cfg.searchLimit = defaultSearchLimit
	}
	if cfg.maxPartySize <= 0 {
		cfg.maxPartySize = defaultMaxPartySize
	}
	if cfg.location == nil {
		cfg.location = time.Local
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}

	c := &Coordinator{
		bus:       bus,
		commander: commander,
		backend:   backend,
		tokens:    tokens,
		clock:     cfg.clock,
		logger:    cfg.logger,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
		loop:      newState(),
	}
	c.snap = c.loop.snapshot(c)
	return c
}

// Start subscribes to the bus and launches the state loop. It loads the
// mode catalog and, when a token is available, the party.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.started {
		return fmt.Errorf("session: coordinator already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.started = true
	c.subID = c.bus.SubscribeAll(c.handle)

	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		c.run(ctx)
	}(c.ctx, c.done)

	c.logger.Info("session coordinator started",
		"party_refresh", c.cfg.refreshInterval,
		"invite_timeout", c.cfg.inviteTimeout,
	)

	c.post(func() {
		c.loadModes()
		c.requestPartyRefresh()
	})
	return nil
}

// Stop cancels the loop, background lookups and timers, and waits for
// them. It is safe to call multiple times.
func (c *Coordinator) Stop() {
	c.lifecycle.Lock()
	if !c.started {
		c.lifecycle.Unlock()
		return
	}
	c.bus.Unsubscribe(c.subID)
	c.subID = ""
	c.cancel()
	done := c.done
	c.started = false
	c.lifecycle.Unlock()

	<-done
	c.wg.Wait()
	c.logger.Info("session coordinator stopped")
}

// Snapshot returns a copy of the latest state.
func (c *Coordinator) Snapshot() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.clone()
}

func (c *Coordinator) run(ctx context.Context) {
	refresh := c.clock.Ticker(c.cfg.refreshInterval)
	defer refresh.Stop()
	tick := c.clock.Ticker(queueTickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.shutdown()
			return
		case <-c.wake:
			c.drain()
		case <-refresh.C:
			c.requestPartyRefresh()
			c.storeSnapshot()
		case <-tick.C:
			c.queueTick()
		}
	}
}

// post queues fn for the loop. It never blocks.
func (c *Coordinator) post(fn func()) {
	c.qmu.Lock()
	c.queue = append(c.queue, fn)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// call runs fn on the loop and waits for it. It must not be used from a
// session event handler, which already runs on the loop.
func (c *Coordinator) call(fn func()) bool {
	c.lifecycle.Lock()
	if !c.started {
		c.lifecycle.Unlock()
		return false
	}
	ctx := c.ctx
	c.lifecycle.Unlock()

	ran := make(chan struct{})
	c.post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) drain() {
	for {
		c.qmu.Lock()
		if len(c.queue) == 0 {
			c.qmu.Unlock()
			break
		}
		task := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.qmu.Unlock()

		c.safeRun(task)
	}
	c.storeSnapshot()
}

func (c *Coordinator) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

// spawn runs fn in a tracked goroutine bound to the coordinator's
// lifetime. It reports false once the coordinator has stopped.
func (c *Coordinator) spawn(fn func(ctx context.Context)) bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started || c.ctx.Err() != nil {
		return false
	}
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
	return true
}

func (c *Coordinator) shutdown() {
	c.stopInvites()
	c.stopSearch()
	c.loop.cancelRoomLookups()
	c.storeSnapshot()
}

func (c *Coordinator) storeSnapshot() {
	snap := c.loop.snapshot(c)
	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
}

// handle runs on the publisher's goroutine. It only posts.
func (c *Coordinator) handle(e event.Event) {
	switch ev := e.(type) {
	case event.MessageEvent:
		c.post(func() { c.onMessage(ev.Message) })
	case event.ConnectionChangedEvent:
		c.post(func() { c.onConnection(ev.Current) })
	case event.TokenChangedEvent:
		c.post(func() { c.onToken(ev.HasToken) })
	case event.IdentityChangedEvent:
		c.post(func() { c.onIdentity(ev.Identity) })
	}
}

func (c *Coordinator) onIdentity(id *model.Identity) {
	c.loop.hasIdentity = id != nil
	c.loop.accountID = id.AccountID()
	if c.loop.room != nil {
		c.updateLocalEntry()
		c.publishRoom()
	}
}

func (c *Coordinator) onConnection(state model.ConnectionState) {
	prev := c.loop.connection
	c.loop.connection = state
	if state == model.HandshakeComplete && prev != model.HandshakeComplete {
		c.logger.Info("session authoritative, refreshing")
		c.loadModes()
		c.requestPartyRefresh()
	}
}

func (c *Coordinator) onToken(hasToken bool) {
	if !hasToken {
		c.clearParty()
		return
	}
	c.requestPartyRefresh()
}
