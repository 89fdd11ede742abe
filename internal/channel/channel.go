package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

var errSuperseded = errors.New("connection superseded")

// Channel is the Game Coordinator connection. It exclusively owns the
// connection state and the socket lifetime.
type Channel struct {
	bus            *event.Bus
	endpoint       string
	dialer         *websocket.Dialer
	logger         *logging.Logger
	connectTimeout time.Duration
	sendBuffer     int
	reconnect      bool
	reconnectMax   time.Duration

	// mu guards the fields below. gen increments on every Connect or
	// Disconnect so late dial results can tell they were superseded.
	mu        sync.Mutex
	token     string
	gen       uint64
	transport *transport
	dialing   bool

	// stateMu serializes transitions so publication order matches.
	stateMu sync.Mutex
	state   atomic.Int32

	life     context.Context
	stopLife context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Channel for the given socket URL (ws, wss, http or https).
// The bus must be non-nil.
func New(bus *event.Bus, socketURL string, opts ...Option) (*Channel, error) {
	if bus == nil {
		panic("channel: event.Bus must not be nil")
	}
	endpoint, err := Endpoint(socketURL)
	if err != nil {
		return nil, err
	}

	cfg := &config{
		connectTimeout: defaultConnectTimeout,
		sendBuffer:     defaultSendBuffer,
		reconnectMax:   defaultReconnectMax,
		logger:         logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.connectTimeout <= 0 {
		cfg.connectTimeout = defaultConnectTimeout
	}
	if cfg.sendBuffer <= 0 {
		cfg.sendBuffer = defaultSendBuffer
	}
	if cfg.reconnectMax <= 0 {
		cfg.reconnectMax = defaultReconnectMax
	}
	if cfg.dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = cfg.connectTimeout
		cfg.dialer = &d
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	life, stop := context.WithCancel(context.Background())
	return &Channel{
		bus:            bus,
		endpoint:       endpoint,
		dialer:         cfg.dialer,
		logger:         cfg.logger,
		connectTimeout: cfg.connectTimeout,
		sendBuffer:     cfg.sendBuffer,
		reconnect:      cfg.reconnect,
		reconnectMax:   cfg.reconnectMax,
		life:           life,
		stopLife:       stop,
	}, nil
}

// Endpoint returns the websocket URL the channel dials.
func (c *Channel) Endpoint() string { return c.endpoint }

// State returns the current connection state.
func (c *Channel) State() model.ConnectionState {
	return model.ConnectionState(c.state.Load())
}

// Connect establishes the channel with token. It is a no-op when a
// connection for the same token is live or being established. Any other
// connection is torn down first.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	c.mu.Lock()
	if c.token == token && (c.transport != nil || c.dialing) {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	old := c.transport
	c.transport = nil
	c.token = token
	c.dialing = true
	c.mu.Unlock()

	if old != nil {
		old.close()
	}
	c.setState(model.Disconnected)

	c.logger.Info("connecting to game coordinator", "endpoint", c.endpoint)
	t, err := c.dial(ctx, token)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if t != nil {
			t.close()
		}
		return errors.Wrap(errors.ErrCanceled, errSuperseded.Error())
	}
	if err != nil {
		retry := c.reconnect && ctx.Err() == nil && errors.IsRetryable(err)
		c.dialing = retry
		if !retry {
			c.token = ""
		}
		c.mu.Unlock()
		c.logger.Warn("game coordinator connect failed", "error", err, "will_retry", retry)
		if retry {
			c.startReconnect(gen, token)
		}
		return err
	}
	c.install(t)
	c.mu.Unlock()
	c.activate(t)
	return nil
}

// Disconnect tears down the transport and clears the token. It is safe to
// call when never connected, and publishes Disconnected only once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	old := c.transport
	c.transport = nil
	c.token = ""
	c.dialing = false
	c.mu.Unlock()

	if old != nil {
		old.close()
		c.logger.Info("disconnected from game coordinator")
	}
	c.setState(model.Disconnected)
}

// Close disconnects and stops any pending reconnect.
func (c *Channel) Close() {
	c.stopLife()
	c.Disconnect()
	c.wg.Wait()
}

// install makes t the live transport. Caller holds c.mu and must call
// activate after releasing it.
func (c *Channel) install(t *transport) {
	c.transport = t
	c.dialing = false
}

// activate publishes Connected for t and starts its reader. The reader
// starts last so CONNECTION_COMPLETE cannot overtake Connected.
func (c *Channel) activate(t *transport) {
	c.setStateFor(t, model.Connected)
	t.logger.Info("game coordinator connected")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop(t)
	}()
}

func (c *Channel) readLoop(t *transport) {
	liveness := t.open.liveness()
	for {
		_ = t.conn.SetReadDeadline(time.Now().Add(liveness))
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			c.onDrop(t, err)
			return
		}
		p, err := parsePacket(data)
		if err != nil {
			t.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch p.kind {
		case kindPing:
			t.queuePong()
		case kindClose, kindDisconnect:
			c.onDrop(t, fmt.Errorf("server closed the connection"))
			return
		case kindEvent:
			c.dispatch(t, protocol.Topic(p.topic), p.payload)
		}
	}
}

func (c *Channel) dispatch(t *transport, topic protocol.Topic, payload []byte) {
	msg, err := protocol.Decode(topic, payload)
	switch {
	case errors.Is(err, errors.ErrUnknownTopic):
		t.logger.Debug("ignoring unknown topic", "topic", string(topic))
		return
	case err != nil:
		t.logger.Warn("dropping undecodable event", "topic", string(topic), "error", err)
		return
	}

	if !c.isCurrent(t) {
		return
	}
	t.logger.Debug("socket event received", "topic", string(topic))
	if topic == protocol.TopicConnectionComplete {
		c.setStateFor(t, model.HandshakeComplete)
	}
	c.bus.Publish(event.NewMessageEvent(msg))
}

func (c *Channel) isCurrent(t *transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport == t
}

// onDrop handles a transport dying underneath us. Drops of transports we
// already replaced or closed are ignored.
func (c *Channel) onDrop(t *transport, cause error) {
	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	gen := c.gen
	token := c.token
	retry := c.reconnect && c.life.Err() == nil
	c.dialing = retry
	if !retry {
		c.token = ""
	}
	c.mu.Unlock()

	t.close()
	t.logger.Warn("game coordinator connection lost", "error", cause, "will_retry", retry)
	c.setState(model.Disconnected)
	if retry {
		c.startReconnect(gen, token)
	}
}

// startReconnect re-dials with token until it succeeds, the connection is
// superseded, or the backend rejects the token.
func (c *Channel) startReconnect(gen uint64, token string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = c.reconnectMax

		op := func() (*transport, error) {
			if !c.isGen(gen) {
				return nil, backoff.Permanent(errSuperseded)
			}
			t, err := c.dial(c.life, token)
			if err != nil && !errors.IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return t, err
		}
		notify := func(err error, next time.Duration) {
			c.logger.Debug("reconnect attempt failed", "error", err, "retry_in", next)
		}

		t, err := backoff.Retry(c.life, op,
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(notify),
		)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			if t != nil {
				t.close()
			}
			return
		}
		if err != nil {
			c.dialing = false
			c.token = ""
			c.mu.Unlock()
			c.logger.Warn("giving up reconnect", "error", err)
			return
		}
		c.install(t)
		c.mu.Unlock()
		c.activate(t)
	}()
}

func (c *Channel) isGen(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// setState moves to next and publishes the transition. Bus handlers run
// inside stateMu and must not call back into the Channel's state changes.
func (c *Channel) setState(next model.ConnectionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.transitionLocked(next)
}

// setStateFor is setState for a transition that only holds while t is the
// live transport.
func (c *Channel) setStateFor(t *transport, next model.ConnectionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !c.isCurrent(t) {
		return
	}
	c.transitionLocked(next)
}

func (c *Channel) transitionLocked(next model.ConnectionState) {
	prev := model.ConnectionState(c.state.Load())
	if prev == next {
		return
	}
	c.state.Store(int32(next))
	c.logger.Info("connection state changed", "from", prev.String(), "to", next.String())
	c.bus.Publish(event.NewConnectionChangedEvent(prev, next))
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

// EnterQueue queues the local party for modes.
func (c *Channel) EnterQueue(modes []protocol.Mode) {
	if modes == nil {
		modes = []protocol.Mode{}
	}
	c.emit(protocol.CommandEnterQueue, protocol.EnterQueue{Modes: modes})
}

// LeaveAllQueues leaves every queue.
func (c *Channel) LeaveAllQueues() {
	c.emit(protocol.CommandLeaveAllQueues, nil)
}

// SetReadyCheck accepts or declines the ready-check for roomID.
func (c *Channel) SetReadyCheck(roomID string, accept bool) {
	c.emit(protocol.CommandSetReadyCheck, protocol.SetReadyCheck{RoomID: roomID, Accept: accept})
}

// InviteToParty invites playerID into the local party.
func (c *Channel) InviteToParty(playerID string) {
	c.emit(protocol.CommandInviteToParty, protocol.InviteToParty{InvitedPlayerID: playerID})
}

// RespondToPartyInvite accepts or declines inviteID.
func (c *Channel) RespondToPartyInvite(inviteID string, accept bool) {
	c.emit(protocol.CommandAcceptPartyInvite, protocol.AcceptPartyInvite{InviteID: inviteID, Accept: accept})
}

// LeaveParty leaves the local party.
func (c *Channel) LeaveParty() {
	c.emit(protocol.CommandLeaveParty, nil)
}

// emit queues a command on the live transport. Without one it does nothing.
func (c *Channel) emit(cmd protocol.Command, payload any) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	if t == nil {
		c.logger.Debug("command dropped: not connected", "command", string(cmd))
		return
	}
	frame, err := encodeEvent(string(cmd), payload)
	if err != nil {
		c.logger.Error("encode command", "command", string(cmd), "error", err)
		return
	}
	if !t.enqueue(frame) {
		t.logger.Warn("command dropped: send buffer full", "command", string(cmd))
	}
}
