package session

import (
	"context"

	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

// Commander sends user intents to the backend. Calls are fire-and-forget.
type Commander interface {
	EnterQueue(modes []protocol.Mode)
	LeaveAllQueues()
	SetReadyCheck(roomID string, accept bool)
	InviteToParty(playerID string)
	RespondToPartyInvite(inviteID string, accept bool)
	LeaveParty()
}

// Backend is the REST surface the session reads from.
type Backend interface {
	GetMyPartySnapshot(ctx context.Context, token string) (model.PartyRoster, error)
	GetEnabledModes(ctx context.Context) ([]model.QueueMode, error)
	SearchPlayers(ctx context.Context, query string, count int) ([]model.PlayerInfo, error)
	GetUserInfo(ctx context.Context, playerID, token string) (model.PlayerInfo, error)
}

// TokenSource yields the current backend access token, or "".
type TokenSource interface {
	AccessToken() string
}
