package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/logging"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

const (
	// DefaultTimeout bounds every request except user lookups.
	DefaultTimeout = 10 * time.Second
	// DefaultUserTimeout bounds one GetUserInfo call.
	DefaultUserTimeout = 5 * time.Second
	// DefaultUserCacheSize is the number of resolved players kept.
	DefaultUserCacheSize = 256
	// DefaultSearchLimit is used when SearchPlayers gets a non-positive count.
	DefaultSearchLimit = 25

	maxBody       = 1 << 20
	maxAvatarBody = 4 << 20
)

// REST paths relative to the base URL.
const (
	PathMyParty     = "v1/player/party"
	PathModes       = "v1/stats/matchmaking"
	PathSearch      = "v1/player/search"
	PathUser        = "v1/player/user/"
	PathOnlineStats = "v1/stats/online"
)

// Client talks to the matchmaking REST API.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	userTimeout time.Duration
	cacheSize   int
	users       *lru.Cache[string, model.PlayerInfo]
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// WithUserTimeout bounds a single player lookup.
func WithUserTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.userTimeout = d
		}
	}
}

// WithUserCacheSize sets the player lookup cache capacity.
func WithUserCacheSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.cacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a client rooted at baseURL, which must be absolute.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:        base,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		userTimeout: DefaultUserTimeout,
		cacheSize:   DefaultUserCacheSize,
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	users, err := lru.New[string, model.PlayerInfo](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	c.users = users
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

// Resolve turns a possibly relative reference into an absolute URL.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.base.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(u.Path, "/"),
		RawQuery: u.RawQuery,
	}).String(), nil
}

// GetMyPartySnapshot fetches the caller's party. An empty token returns an
// empty roster without a request.
func (c *Client) GetMyPartySnapshot(ctx context.Context, token string) (model.PartyRoster, error) {
	if strings.TrimSpace(token) == "" {
		c.logger.Debug("party fetch skipped: no access token")
		return model.PartyRoster{}, nil
	}

	var dto *partyDTO
	if err := c.getJSON(ctx, "get party", PathMyParty, nil, token, maxBody, &dto); err != nil {
		return model.PartyRoster{}, err
	}
	if dto == nil {
		return model.PartyRoster{}, nil
	}

	roster := partyFromDTO(dto)
	c.logger.Info("party fetched", "party_id", roster.PartyID, "members", roster.Len())
	return roster, nil
}

func partyFromDTO(dto *partyDTO) model.PartyRoster {
	roster := model.PartyRoster{PartyID: dto.ID}
	index := make(map[string]int)
	put := func(m model.PartyMember) {
		if i, ok := index[m.PlayerID]; ok {
			m.IsLeader = m.IsLeader || roster.Members[i].IsLeader
			roster.Members[i] = m
			return
		}
		index[m.PlayerID] = len(roster.Members)
		roster.Members = append(roster.Members, m)
	}

	if l := dto.Leader; l != nil && strings.TrimSpace(l.SteamID) != "" {
		put(model.PartyMember{
			PlayerID:  l.SteamID,
			Name:      l.Name,
			AvatarURL: l.AvatarURL(),
			Access:    model.AllowAll(),
			IsLeader:  true,
		})
	}

	for _, p := range dto.Players {
		if p.Summary == nil || p.Summary.User == nil {
			continue
		}
		u := p.Summary.User
		if strings.TrimSpace(u.SteamID) == "" {
			continue
		}
		m := model.PartyMember{
			PlayerID:  u.SteamID,
			Name:      u.Name,
			AvatarURL: u.AvatarURL(),
			Access:    model.AllowAll(),
		}
		if b := p.Summary.BanStatus; b != nil {
			m.Ban = model.BanStatus{IsBanned: b.IsBanned, BannedUntil: b.BannedUntil}
		}
		if a := p.Summary.AccessMap; a != nil {
			m.Access = model.AccessMap{
				HumanGames:  allowed(a.HumanGames),
				SimpleModes: allowed(a.SimpleModes),
				Education:   allowed(a.Education),
			}
		}
		put(m)
	}

	if at, ok := parseUTC(dto.EnterQueueAt); ok {
		roster.EnterQueueAt = &at
	}
	return roster
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseUTC accepts RFC 3339 and offset-less timestamps, treating the
// latter as UTC.
func parseUTC(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// GetEnabledModes returns the enabled matchmaking modes in backend order.
func (c *Client) GetEnabledModes(ctx context.Context) ([]model.QueueMode, error) {
	var dtos []*modeDTO
	if err := c.getJSON(ctx, "get modes", PathModes, nil, "", maxBody, &dtos); err != nil {
		return nil, err
	}
	modes := make([]model.QueueMode, 0, len(dtos))
	for _, d := range dtos {
		if d == nil || !d.Enabled {
			continue
		}
		modes = append(modes, model.QueueMode{
			ID:   d.LobbyType,
			Name: protocol.Mode(d.LobbyType).Label(),
		})
	}
	return modes, nil
}

// SearchPlayers looks players up by name. Results without a player id are
// skipped and a missing name falls back to the id.
func (c *Client) SearchPlayers(ctx context.Context, query string, count int) ([]model.PlayerInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if count <= 0 {
		count = DefaultSearchLimit
	}

	q := url.Values{}
	q.Set("name", query)
	q.Set("count", strconv.Itoa(count))

	var users []*protocol.User
	if err := c.getJSON(ctx, "search players", PathSearch, q, "", maxBody, &users); err != nil {
		return nil, err
	}

	out := make([]model.PlayerInfo, 0, len(users))
	for _, u := range users {
		if u == nil || strings.TrimSpace(u.SteamID) == "" {
			continue
		}
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = u.SteamID
		}
		info := model.PlayerInfo{PlayerID: u.SteamID, Name: name, AvatarURL: u.AvatarURL()}
		out = append(out, info)
	}
	c.logger.Debug("player search", "query", query, "results", len(out))
	return out, nil
}

// GetUserInfo resolves a player's name and avatar. Successful lookups are
// cached; failures are not.
func (c *Client) GetUserInfo(ctx context.Context, playerID, token string) (model.PlayerInfo, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return model.PlayerInfo{}, errors.NewBackendError("get user", 0, errors.ErrInvalidInput).WithRetryable(false)
	}
	if strings.TrimSpace(token) == "" {
		return model.PlayerInfo{}, errors.NewBackendError("get user", 0, errors.ErrNoAccessToken).WithRetryable(false)
	}
	if info, ok := c.users.Get(playerID); ok {
		return info, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.userTimeout)
	defer cancel()

	var u *protocol.User
	if err := c.getJSON(ctx, "get user", PathUser+url.PathEscape(playerID), nil, token, maxBody, &u); err != nil {
		return model.PlayerInfo{}, err
	}
	if u == nil {
		return model.PlayerInfo{}, errors.NewBackendError("get user", http.StatusNotFound, errors.ErrDecode)
	}

	info := model.PlayerInfo{PlayerID: playerID, Name: u.Name, AvatarURL: u.AvatarURL()}
	c.users.Add(playerID, info)
	return info, nil
}

// CachedUsers returns the number of cached player lookups.
func (c *Client) CachedUsers() int { return c.users.Len() }

// LoadAvatar downloads image bytes. Relative URLs resolve against the base.
func (c *Client) LoadAvatar(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, errors.NewBackendError("load avatar", 0, errors.ErrInvalidInput).WithRetryable(false)
	}
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, errors.NewBackendError("load avatar", 0, err).WithRetryable(false)
	}
	return c.do(ctx, "load avatar", target, "", maxAvatarBody)
}

// OnlineStats are the public presence counters.
type OnlineStats struct {
	InGame   int
	Sessions int
}

// GetOnlineStats fetches the presence counters. inGame may arrive as a
// string or a number.
func (c *Client) GetOnlineStats(ctx context.Context) (OnlineStats, error) {
	var dto onlineDTO
	if err := c.getJSON(ctx, "get online stats", PathOnlineStats, nil, "", maxBody, &dto); err != nil {
		return OnlineStats{}, err
	}
	return OnlineStats{InGame: int(dto.InGame), Sessions: int(dto.Sessions)}, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, token string, limit int64, out any) error {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}
	body, err := c.do(ctx, op, u.String(), token, limit)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewBackendError(op, 0, fmt.Errorf("%w: %v", errors.ErrDecode, err)).WithRetryable(false)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, target, token string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, errors.Wrap(errors.ErrCanceled, op)
		}
		return nil, errors.NewBackendError(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, errors.Wrap(errors.ErrCanceled, op)
		}
		return nil, errors.NewBackendError(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewBackendError(op, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return body, nil
}
