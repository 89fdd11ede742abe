package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d2c-launcher/coordinator/internal/channel/channeltest"
	"github.com/d2c-launcher/coordinator/internal/config"
	"github.com/d2c-launcher/coordinator/internal/identity"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
	"github.com/d2c-launcher/coordinator/internal/session"
	"github.com/d2c-launcher/coordinator/internal/settings"
)

const (
	waitFor = 5 * time.Second
	poll    = 10 * time.Millisecond

	steamID = 76561198000000100
)

type fakeScanner struct{ running bool }

func (f fakeScanner) Running(context.Context, string) (bool, error) { return f.running, nil }

type fakeHelper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeHelper) Query(context.Context) (*identity.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &identity.Snapshot{
		Status:      "Running",
		SteamID:     steamID,
		PersonaName: "Alice",
		AuthTicket:  "ticket-1",
	}, nil
}

// fakeAPI serves the exchange endpoint and the REST calls the session
// makes after it.
type fakeAPI struct {
	*httptest.Server

	mu          sync.Mutex
	tickets     []string
	partyTokens []string
	bannedUntil time.Time
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{bannedUntil: time.Now().Add(10 * 24 * time.Hour)}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/steam/steam_session_ticket", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.tickets = append(api.tickets, r.URL.Query().Get("ticket"))
		api.mu.Unlock()
		_, _ = w.Write([]byte(`"tok-1"`))
	})
	mux.HandleFunc("/v1/player/party", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.partyTokens = append(api.partyTokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		until := api.bannedUntil
		api.mu.Unlock()

		fmt.Fprintf(w, `{
			"id": "party-1",
			"leader": {"steamId": "%[1]d", "name": "Alice"},
			"players": [
				{"summary": {"user": {"steamId": "%[1]d", "name": "Alice"}}},
				{"summary": {
					"user": {"steamId": "200", "name": "Bob"},
					"banStatus": {"isBanned": true, "bannedUntil": %[2]q}
				}}
			]
		}`, model.AccountID(steamID), until.UTC().Format(time.RFC3339))
	})
	mux.HandleFunc("/v1/stats/matchmaking", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"lobby_type": 13, "enabled": true},
			{"lobby_type": 1, "enabled": true},
			{"lobby_type": 7, "enabled": false}
		]`))
	})
	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) Tickets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tickets...)
}

func (a *fakeAPI) PartyTokens() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.partyTokens...)
}

func testConfig(t *testing.T, api *fakeAPI, gc *channeltest.Server) *config.Config {
	cfg := config.Default()
	cfg.Auth.BaseURL = api.URL + "/"
	cfg.Channel.SocketURL = gc.SocketURL()
	cfg.Channel.Reconnect = false
	cfg.Identity.PollIntervalMs = 20
	cfg.Paths.DataDir = t.TempDir()
	return cfg
}

func nextCommand(t *testing.T, gc *channeltest.Server, name string) channeltest.Command {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case cmd := <-gc.Commands():
			if cmd.Name == name {
				return cmd
			}
		case <-deadline:
			t.Fatalf("command %s not received", name)
			return channeltest.Command{}
		}
	}
}

func TestApp_CredentialToQueue(t *testing.T) {
	api := newFakeAPI(t)
	gc := channeltest.NewServer()
	defer gc.Close()

	store := settings.NewMemoryStore(settings.Settings{})
	helper := &fakeHelper{}
	a, err := New(testConfig(t, api, gc),
		WithStore(store),
		WithHelper(helper),
		WithIdentityOptions(
			identity.WithScanner(fakeScanner{running: true}),
			identity.WithActiveUserReader(identity.ActiveUserFunc(func() uint64 { return steamID })),
		),
		WithSessionOptions(session.WithLocation(time.UTC)),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	require.Eventually(t, func() bool { return gc.Connections() == 1 }, waitFor, poll, "channel never connected")
	assert.Equal(t, []string{"tok-1"}, gc.Tokens())
	assert.Equal(t, []string{"ticket-1"}, api.Tickets())
	assert.Equal(t, "tok-1", store.Get().BackendAccessToken)
	assert.Equal(t, "tok-1", a.Gate().AccessToken())

	require.NoError(t, gc.Emit(string(protocol.TopicConnectionComplete), nil))

	require.Eventually(t, func() bool {
		s := a.Session().Snapshot()
		return s.Connection == model.HandshakeComplete && s.Party.Len() == 2 && len(s.Modes) == 2 &&
			s.Modes[0].Restriction != ""
	}, waitFor, poll, "session never became authoritative")

	for _, tok := range api.PartyTokens() {
		assert.Equal(t, "tok-1", tok)
	}

	s := a.Session().Snapshot()
	assert.Equal(t, "party-1", s.Party.PartyID)
	assert.True(t, s.CanLeave)
	require.Equal(t, 1, s.Modes[0].ID, "featured mode sorts first")
	assert.True(t, strings.HasPrefix(s.Modes[0].Restriction, "Matchmaking is banned until "), s.Modes[0].Restriction)
	assert.Equal(t, 13, s.Modes[1].ID)
	assert.Empty(t, s.Modes[1].Restriction)

	a.Session().SelectMode(1, true)
	a.Session().SelectMode(13, true)
	a.Session().ToggleSearch()

	cmd := nextCommand(t, gc, string(protocol.CommandEnterQueue))
	var payload protocol.EnterQueue
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, []protocol.Mode{13}, payload.Modes, "restricted mode must not be queued")
	assert.Equal(t, "tok-1", cmd.Token)

	require.NoError(t, gc.Emit(string(protocol.TopicPlayerQueueState), map[string]any{
		"partyId": "party-1",
		"modes":   []int{13},
		"inQueue": true,
	}))
	require.Eventually(t, func() bool { return a.Session().Snapshot().Searching }, waitFor, poll)
	assert.Equal(t, session.ActionCancel, a.Session().Snapshot().Display.Action)
}

func TestApp_RestoresPersistedToken(t *testing.T) {
	api := newFakeAPI(t)
	gc := channeltest.NewServer()
	defer gc.Close()

	store := settings.NewMemoryStore(settings.Settings{BackendAccessToken: "persisted"})
	helper := &fakeHelper{}
	a, err := New(testConfig(t, api, gc),
		WithStore(store),
		WithHelper(helper),
		WithIdentityOptions(identity.WithScanner(fakeScanner{running: false})),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	require.Eventually(t, func() bool { return gc.Connections() == 1 }, waitFor, poll)
	assert.Equal(t, []string{"persisted"}, gc.Tokens())
	assert.Empty(t, api.Tickets(), "no exchange without a credential")

	helper.mu.Lock()
	assert.Zero(t, helper.calls, "helper is not queried while the provider is down")
	helper.mu.Unlock()

	status, id, _ := a.Identity().Snapshot()
	assert.Equal(t, model.StatusNotRunning, status)
	assert.Nil(t, id)
}

func TestApp_StartStop(t *testing.T) {
	api := newFakeAPI(t)
	gc := channeltest.NewServer()
	defer gc.Close()

	a, err := New(testConfig(t, api, gc),
		WithStore(settings.NewMemoryStore(settings.Settings{})),
		WithHelper(&fakeHelper{}),
		WithIdentityOptions(identity.WithScanner(fakeScanner{})),
	)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, a.Start(context.Background()))
	a.Stop()
	a.Stop()
	assert.Equal(t, model.Disconnected, a.Channel().State())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Auth.BaseURL = "not-absolute"
	_, err = New(cfg, WithStore(settings.NewMemoryStore(settings.Settings{})))
	assert.Error(t, err)
}
