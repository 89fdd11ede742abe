package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

const (
	waitFor = 5 * time.Second
	poll    = 5 * time.Millisecond
)

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCommander) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCommander) EnterQueue(modes []protocol.Mode) { f.record("enter:%v", modes) }
func (f *fakeCommander) LeaveAllQueues()                  { f.record("leave_all") }
func (f *fakeCommander) SetReadyCheck(roomID string, accept bool) {
	f.record("ready:%s:%t", roomID, accept)
}
func (f *fakeCommander) InviteToParty(playerID string) { f.record("invite:%s", playerID) }
func (f *fakeCommander) RespondToPartyInvite(inviteID string, accept bool) {
	f.record("respond:%s:%t", inviteID, accept)
}
func (f *fakeCommander) LeaveParty() { f.record("leave_party") }

func (f *fakeCommander) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBackend struct {
	mu sync.Mutex

	modes    []model.QueueMode
	modesErr error

	party      model.PartyRoster
	partyErr   error
	partyGate  chan struct{}
	partyCalls int

	users     map[string]string
	userGates map[string]chan struct{}
	userCalls map[string]int

	searchErr   error
	searchGate  chan struct{}
	searches    []string
	searchLimit int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:     make(map[string]string),
		userGates: make(map[string]chan struct{}),
		userCalls: make(map[string]int),
	}
}

func (f *fakeBackend) GetMyPartySnapshot(ctx context.Context, token string) (model.PartyRoster, error) {
	f.mu.Lock()
	f.partyCalls++
	gate := f.partyGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRoster(f.party), f.partyErr
}

func (f *fakeBackend) GetEnabledModes(ctx context.Context) ([]model.QueueMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QueueMode(nil), f.modes...), f.modesErr
}

func (f *fakeBackend) SearchPlayers(ctx context.Context, query string, count int) ([]model.PlayerInfo, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.searchLimit = count
	gate := f.searchGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []model.PlayerInfo{
		{PlayerID: query + "-1", Name: query + " one"},
		{PlayerID: query + "-2", Name: query + " two"},
	}, nil
}

// GetUserInfo blocks the first call for a player on its gate, if any, and
// ignores cancellation so late results can be observed.
func (f *fakeBackend) GetUserInfo(ctx context.Context, playerID, token string) (model.PlayerInfo, error) {
	f.mu.Lock()
	f.userCalls[playerID]++
	n := f.userCalls[playerID]
	gate := f.userGates[playerID]
	name, ok := f.users[playerID]
	f.mu.Unlock()

	if gate != nil && n == 1 {
		<-gate
		return model.PlayerInfo{PlayerID: playerID, Name: "stale " + playerID}, nil
	}
	if !ok {
		return model.PlayerInfo{}, fmt.Errorf("no such player %s", playerID)
	}
	return model.PlayerInfo{PlayerID: playerID, Name: name, AvatarURL: "/avatars/" + playerID}, nil
}

func (f *fakeBackend) PartyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partyCalls
}

func (f *fakeBackend) UserCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls[id]
}

func (f *fakeBackend) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func (f *fakeBackend) setParty(r model.PartyRoster, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.party, f.partyErr = r, err
}

type fakeTokens struct{ v atomic.Value }

func (f *fakeTokens) set(tok string) { f.v.Store(tok) }

func (f *fakeTokens) AccessToken() string {
	s, _ := f.v.Load().(string)
	return s
}

type recorder struct {
	mu     sync.Mutex
	counts map[string]int
	last   map[string]event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[e.EventType()]++
	r.last[e.EventType()] = e
}

func (r *recorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[eventType]
}

func (r *recorder) Last(eventType string) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[eventType]
}

type harness struct {
	t      *testing.T
	bus    *event.Bus
	clock  *clock.Mock
	cmd    *fakeCommander
	be     *fakeBackend
	tokens *fakeTokens
	rec    *recorder
	c      *Coordinator
}

func newHarness(t *testing.T, setup func(h *harness), opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		bus:    event.NewBus(),
		clock:  clock.NewMock(),
		cmd:    &fakeCommander{},
		be:     newFakeBackend(),
		tokens: &fakeTokens{},
		rec:    &recorder{counts: make(map[string]int), last: make(map[string]event.Event)},
	}
	h.tokens.set("token-a")
	h.bus.SubscribeAll(h.rec.handle)
	if setup != nil {
		setup(h)
	}

	opts = append([]Option{WithClock(h.clock), WithLocation(time.UTC)}, opts...)
	h.c = NewCoordinator(h.bus, h.cmd, h.be, h.tokens, opts...)
	require.NoError(t, h.c.Start(context.Background()))
	t.Cleanup(h.c.Stop)
	h.sync()
	return h
}

func (h *harness) publish(msg protocol.Message) {
	h.bus.Publish(event.NewMessageEvent(msg))
}

// sync waits until the loop has processed everything posted so far.
func (h *harness) sync() {
	h.t.Helper()
	require.True(h.t, h.c.call(func() {}), "coordinator not running")
}

// flush is sync for use off the test goroutine.
func (h *harness) flush() bool {
	return h.c.call(func() {})
}

func (h *harness) eventually(cond func(s State) bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.flush()
		return cond(h.c.Snapshot())
	}, waitFor, poll, msg)
}

func (h *harness) advance(d time.Duration) {
	h.clock.Add(d)
	h.sync()
}
