package identity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raulk/clock"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
)

type fakeScanner struct {
	mu      sync.Mutex
	running bool
	err     error
}

func (f *fakeScanner) set(running bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
	f.err = err
}

func (f *fakeScanner) Running(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.err
}

type fakeHelper struct {
	mu    sync.Mutex
	calls int
	query func(call int) (*Snapshot, error)
}

func (f *fakeHelper) Query(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	query := f.query
	f.mu.Unlock()
	return query(call)
}

func (f *fakeHelper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func newRecorder(bus *event.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) last(eventType string) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType() == eventType {
			return r.events[i]
		}
	}
	return nil
}

func snapshotFor(id uint64, name, ticket string) *Snapshot {
	return &Snapshot{
		Status:      "Running",
		SteamID:     flexUint(id),
		PersonaName: name,
		AuthTicket:  ticket,
	}
}

type harness struct {
	sup     *Supervisor
	bus     *event.Bus
	rec     *recorder
	scanner *fakeScanner
	helper  *fakeHelper
	user    *atomic.Uint64
}

func newHarness(t *testing.T, query func(call int) (*Snapshot, error), opts ...Option) *harness {
	t.Helper()
	bus := event.NewBus()
	h := &harness{
		bus:     bus,
		rec:     newRecorder(bus),
		scanner: &fakeScanner{running: true},
		helper:  &fakeHelper{query: query},
		user:    &atomic.Uint64{},
	}
	h.user.Store(76561198000000042)
	base := []Option{
		WithScanner(h.scanner),
		WithActiveUserReader(ActiveUserFunc(h.user.Load)),
		WithClock(clock.NewMock()),
	}
	h.sup = NewSupervisor(bus, h.helper, append(base, opts...)...)
	return h
}

func TestSupervisor_ResolvesNewUserOnce(t *testing.T) {
	h := newHarness(t, func(int) (*Snapshot, error) {
		return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
	})
	ctx := context.Background()

	if wait := h.sup.step(ctx); wait != time.Second {
		t.Errorf("step() wait = %v, want 1s", wait)
	}
	h.sup.step(ctx)
	h.sup.step(ctx)

	if got := h.helper.Calls(); got != 1 {
		t.Errorf("helper calls = %d, want 1", got)
	}
	status, id, cred := h.sup.Snapshot()
	if status != model.StatusRunning {
		t.Errorf("status = %v, want Running", status)
	}
	if id == nil || id.Name != "alice" {
		t.Errorf("identity = %+v, want alice", id)
	}
	if cred != "ticket-1" {
		t.Errorf("credential = %q, want ticket-1", cred)
	}
	if n := h.rec.count(event.TypeIdentityChanged); n != 1 {
		t.Errorf("identity events = %d, want 1", n)
	}
	if n := h.rec.count(event.TypeCredentialChanged); n != 1 {
		t.Errorf("credential events = %d, want 1", n)
	}
	if n := h.rec.count(event.TypeIdentityStatusChanged); n != 1 {
		t.Errorf("status events = %d, want 1", n)
	}
}

func TestSupervisor_LeavingRunningClearsOnce(t *testing.T) {
	tests := []struct {
		name       string
		running    bool
		user       uint64
		wantStatus model.IdentityStatus
	}{
		{"provider exits", false, 76561198000000042, model.StatusNotRunning},
		{"user signs out", true, 0, model.StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(int) (*Snapshot, error) {
				return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
			})
			ctx := context.Background()
			h.sup.step(ctx)

			h.scanner.set(tt.running, nil)
			h.user.Store(tt.user)
			h.sup.step(ctx)
			h.sup.step(ctx)

			status, id, cred := h.sup.Snapshot()
			if status != tt.wantStatus {
				t.Errorf("status = %v, want %v", status, tt.wantStatus)
			}
			if id != nil || cred != "" {
				t.Errorf("identity/credential not cleared: %+v %q", id, cred)
			}
			if n := h.rec.count(event.TypeIdentityChanged); n != 2 {
				t.Errorf("identity events = %d, want 2 (set + clear)", n)
			}
			if n := h.rec.count(event.TypeCredentialChanged); n != 2 {
				t.Errorf("credential events = %d, want 2 (set + clear)", n)
			}
			last := h.rec.last(event.TypeCredentialChanged).(event.CredentialChangedEvent)
			if last.Credential != "" {
				t.Errorf("last credential = %q, want empty", last.Credential)
			}
		})
	}
}

func TestSupervisor_ReturningUserIsQueriedAgain(t *testing.T) {
	h := newHarness(t, func(int) (*Snapshot, error) {
		return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
	})
	ctx := context.Background()
	h.sup.step(ctx)

	h.scanner.set(false, nil)
	h.sup.step(ctx)
	h.scanner.set(true, nil)
	h.sup.step(ctx)

	if got := h.helper.Calls(); got != 2 {
		t.Errorf("helper calls = %d, want 2", got)
	}
}

func TestSupervisor_SwitchBackAfterUnresolvedUser(t *testing.T) {
	const (
		alice uint64 = 76561198000000042
		bob   uint64 = 76561198000000077
	)
	tests := []struct {
		name string
		bob  func() (*Snapshot, error)
	}{
		{"query fails", func() (*Snapshot, error) {
			return nil, errors.NewHelperError("boom", errors.ErrHelperTimeout)
		}},
		{"credential pending", func() (*Snapshot, error) {
			return snapshotFor(bob, "bob", ""), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h *harness
			h = newHarness(t, func(int) (*Snapshot, error) {
				if h.user.Load() == bob {
					return tt.bob()
				}
				return snapshotFor(alice, "alice", "ticket-a"), nil
			})
			ctx := context.Background()

			h.user.Store(alice)
			h.sup.step(ctx)
			h.user.Store(bob)
			h.sup.step(ctx)
			if _, _, cred := h.sup.Snapshot(); cred != "" {
				t.Fatalf("credential after switching to bob = %q, want empty", cred)
			}

			h.user.Store(alice)
			h.sup.step(ctx)
			h.sup.step(ctx)

			if got := h.helper.Calls(); got != 3 {
				t.Errorf("helper calls = %d, want 3", got)
			}
			status, id, cred := h.sup.Snapshot()
			if status != model.StatusRunning {
				t.Errorf("status = %v, want Running", status)
			}
			if id == nil || id.Name != "alice" {
				t.Errorf("identity = %+v, want alice", id)
			}
			if cred != "ticket-a" {
				t.Errorf("credential = %q, want ticket-a", cred)
			}
			lastID := h.rec.last(event.TypeIdentityChanged).(event.IdentityChangedEvent)
			if lastID.Identity == nil || lastID.Identity.Name != "alice" {
				t.Errorf("last identity event = %+v, want alice", lastID.Identity)
			}
			lastCred := h.rec.last(event.TypeCredentialChanged).(event.CredentialChangedEvent)
			if lastCred.Credential != "ticket-a" {
				t.Errorf("last credential event = %q, want ticket-a", lastCred.Credential)
			}
		})
	}
}

func TestSupervisor_PartialResultRetriesNextTick(t *testing.T) {
	h := newHarness(t, func(call int) (*Snapshot, error) {
		if call == 1 {
			return snapshotFor(76561198000000042, "alice", ""), nil
		}
		return snapshotFor(76561198000000042, "alice", "ticket-2"), nil
	})
	ctx := context.Background()

	h.sup.step(ctx)
	if n := h.rec.count(event.TypeIdentityChanged); n != 1 {
		t.Fatalf("identity events after partial = %d, want 1", n)
	}
	if n := h.rec.count(event.TypeCredentialChanged); n != 0 {
		t.Fatalf("credential events after partial = %d, want 0", n)
	}

	h.sup.step(ctx)
	if got := h.helper.Calls(); got != 2 {
		t.Errorf("helper calls = %d, want 2", got)
	}
	if n := h.rec.count(event.TypeIdentityChanged); n != 1 {
		t.Errorf("identity republished for unchanged identity: %d events", n)
	}
	if _, _, cred := h.sup.Snapshot(); cred != "ticket-2" {
		t.Errorf("credential = %q, want ticket-2", cred)
	}

	h.sup.step(ctx)
	if got := h.helper.Calls(); got != 2 {
		t.Errorf("helper queried after full resolution: %d calls", got)
	}
}

func TestSupervisor_FailureBackoff(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	h := newHarness(t, func(int) (*Snapshot, error) {
		if fail.Load() {
			return nil, errors.NewHelperError("boom", errors.ErrHelperTimeout)
		}
		return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
	})
	ctx := context.Background()

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		if got := h.sup.step(ctx); got != w {
			t.Errorf("failure %d: wait = %v, want %v", i+1, got, w)
		}
	}
	if _, id, cred := h.sup.Snapshot(); id != nil || cred != "" {
		t.Errorf("failure left identity/credential set")
	}

	fail.Store(false)
	if got := h.sup.step(ctx); got != time.Second {
		t.Errorf("success wait = %v, want 1s", got)
	}

	// Streak reset: the next failure starts from 1s again.
	fail.Store(true)
	h.user.Store(76561198000000099)
	if got := h.sup.step(ctx); got != time.Second {
		t.Errorf("first failure after success: wait = %v, want 1s", got)
	}
	if got := h.sup.step(ctx); got != 2*time.Second {
		t.Errorf("second failure after success: wait = %v, want 2s", got)
	}
}

func TestSupervisor_RejectedSnapshotIsFailure(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
	}{
		{"provider offline", &Snapshot{Status: "Offline"}},
		{"missing id", &Snapshot{Status: "Running", PersonaName: "alice"}},
		{"blank name", &Snapshot{Status: "Running", SteamID: 42, PersonaName: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(int) (*Snapshot, error) { return tt.snap, nil })
			h.sup.step(context.Background())
			h.sup.step(context.Background())

			if got := h.helper.Calls(); got != 2 {
				t.Errorf("helper calls = %d, want 2", got)
			}
			if h.sup.streak != 2 {
				t.Errorf("streak = %d, want 2", h.sup.streak)
			}
			if n := h.rec.count(event.TypeIdentityChanged); n != 0 {
				t.Errorf("identity events = %d, want 0", n)
			}
		})
	}
}

func TestSupervisor_PanicDegradesToOffline(t *testing.T) {
	h := newHarness(t, func(call int) (*Snapshot, error) {
		if call == 2 {
			panic("helper exploded")
		}
		return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
	})
	ctx := context.Background()
	h.sup.step(ctx)

	h.user.Store(76561198000000099)
	if wait := h.sup.step(ctx); wait != time.Second {
		t.Errorf("wait after panic = %v, want 1s", wait)
	}

	status, id, cred := h.sup.Snapshot()
	if status != model.StatusOffline {
		t.Errorf("status = %v, want Offline", status)
	}
	if id != nil || cred != "" {
		t.Errorf("panic left identity/credential set")
	}
	if h.sup.lastResolved != 0 {
		t.Errorf("lastResolved = %d, want 0", h.sup.lastResolved)
	}

	// The loop keeps going and resolves on the next tick.
	h.sup.step(ctx)
	if status, _, _ := h.sup.Snapshot(); status != model.StatusRunning {
		t.Errorf("status after recovery = %v, want Running", status)
	}
}

func TestSupervisor_ScanErrorDegradesToOffline(t *testing.T) {
	h := newHarness(t, func(int) (*Snapshot, error) {
		return snapshotFor(76561198000000042, "alice", "ticket-1"), nil
	})
	ctx := context.Background()
	h.sup.step(ctx)

	h.scanner.set(false, fmt.Errorf("proc table unavailable"))
	h.sup.step(ctx)

	status, id, _ := h.sup.Snapshot()
	if status != model.StatusOffline {
		t.Errorf("status = %v, want Offline", status)
	}
	if id != nil {
		t.Errorf("identity not cleared")
	}
}

func TestSupervisor_OfflineSkipsHelper(t *testing.T) {
	h := newHarness(t, func(int) (*Snapshot, error) {
		t.Error("helper should not run without an active user")
		return nil, nil
	})
	h.user.Store(0)
	h.sup.step(context.Background())

	if status, _, _ := h.sup.Snapshot(); status != model.StatusOffline {
		t.Errorf("status = %v, want Offline", status)
	}
}

func TestSupervisor_StartStop(t *testing.T) {
	mock := clock.NewMock()
	h := newHarness(t, func(int) (*Snapshot, error) {
		return nil, errors.NewHelperError("boom", errors.ErrHelperMissing)
	}, WithClock(mock))

	if err := h.sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.sup.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.helper.Calls() < 3 && time.Now().Before(deadline) {
		mock.Add(30 * time.Second)
		time.Sleep(time.Millisecond)
	}
	if got := h.helper.Calls(); got < 3 {
		t.Fatalf("helper calls = %d, want >= 3", got)
	}

	if !h.sup.Stop() {
		t.Error("Stop() did not join in time")
	}
	if !h.sup.Stop() {
		t.Error("second Stop() should be a no-op")
	}
}

func TestSupervisor_StopWithoutStart(t *testing.T) {
	h := newHarness(t, func(int) (*Snapshot, error) { return nil, nil })
	if !h.sup.Stop() {
		t.Error("Stop() without Start() should report success")
	}
}

func TestNewSupervisor_PanicsOnNil(t *testing.T) {
	tests := []struct {
		name   string
		bus    *event.Bus
		helper HelperQuerier
	}{
		{"nil bus", nil, &fakeHelper{}},
		{"nil helper", event.NewBus(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			NewSupervisor(tt.bus, tt.helper)
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		streak int
		max    time.Duration
		want   time.Duration
	}{
		{0, 30 * time.Second, 0},
		{-1, 30 * time.Second, 0},
		{1, 30 * time.Second, time.Second},
		{2, 30 * time.Second, 2 * time.Second},
		{3, 30 * time.Second, 4 * time.Second},
		{5, 30 * time.Second, 16 * time.Second},
		{6, 30 * time.Second, 30 * time.Second},
		{64, 30 * time.Second, 30 * time.Second},
		{3, 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("streak=%d/max=%v", tt.streak, tt.max), func(t *testing.T) {
			if got := BackoffDelay(tt.streak, tt.max); got != tt.want {
				t.Errorf("BackoffDelay(%d, %v) = %v, want %v", tt.streak, tt.max, got, tt.want)
			}
		})
	}
}
