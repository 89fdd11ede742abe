package protocol

import "encoding/json"

// Message is an inbound payload decoded from one of the known topics.
// The set of implementations is closed.
type Message interface {
	Topic() Topic
	isMessage()
}

// User is the backend's public profile shape embedded in several payloads.
type User struct {
	SteamID     string `json:"steamId"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	AvatarSmall string `json:"avatarSmall,omitempty"`
}

// AvatarURL prefers the small avatar.
func (u User) AvatarURL() string {
	if u.AvatarSmall != "" {
		return u.AvatarSmall
	}
	return u.Avatar
}

// ConnectionComplete acknowledges the session. Its payload is ignored.
type ConnectionComplete struct{}

// QueueState is a broadcast per-mode counter.
type QueueState struct {
	Mode    Mode   `json:"mode"`
	Version string `json:"version"`
	InQueue int    `json:"inQueue"`
}

// PlayerQueueState is the local party's queue membership.
type PlayerQueueState struct {
	PartyID string `json:"partyId"`
	Modes   []Mode `json:"modes"`
	InQueue bool   `json:"inQueue"`
}

// RoomEntry is one player's ready-check response.
type RoomEntry struct {
	SteamID string `json:"steamId"`
	State   int    `json:"state"`
}

// PlayerRoomState describes the local player's ready-check room. Room is nil
// when the server cleared the room.
type PlayerRoomState struct {
	// Found is true when the message arrived as PLAYER_ROOM_FOUND.
	Found bool
	Room  *Room
}

// Room is the non-null body of a room-state message.
type Room struct {
	RoomID  string      `json:"roomId"`
	Mode    Mode        `json:"mode"`
	Entries []RoomEntry `json:"entries"`
}

// PartyChanged signals that the party roster changed server-side. The body
// is kept raw; consumers refetch the full snapshot.
type PartyChanged struct {
	Raw json.RawMessage
}

// PlayerGameState carries the assigned game server. Game is nil when the
// game ended or was cancelled.
type PlayerGameState struct {
	// Ready is true when the message arrived as PLAYER_GAME_READY.
	Ready bool
	Game  *Game
}

// Game is the non-null body of a game-state message.
type Game struct {
	ServerURL string `json:"serverUrl"`
}

// ServerSearching reports whether the backend is allocating a server.
type ServerSearching struct {
	Searching bool `json:"searching"`
}

// OnlineUpdate lists online player ids.
type OnlineUpdate struct {
	Online   []string `json:"online"`
	Sessions int      `json:"sessions"`
}

// PartyInviteReceived is an invitation into another player's party.
type PartyInviteReceived struct {
	PartyID  string `json:"partyId"`
	InviteID string `json:"inviteId"`
	Inviter  User   `json:"inviter"`
}

// PartyInvitesState is the full set of pending invitations, sent on connect.
type PartyInvitesState struct {
	Invitations []PartyInviteReceived `json:"invitations"`
}

// PartyInviteExpired is the server-side expiry of an invitation.
type PartyInviteExpired struct {
	InviteID string `json:"inviteId"`
}

// NotificationCreated wraps a generic notification. The DTO is forwarded
// without interpretation.
type NotificationCreated struct {
	Notification json.RawMessage `json:"notificationDto"`
}

// PleaseEnterQueue is the server's nudge to requeue for a mode.
type PleaseEnterQueue struct {
	Mode    Mode   `json:"mode"`
	Version string `json:"version"`
	InQueue int    `json:"inQueue"`
}

func (ConnectionComplete) Topic() Topic  { return TopicConnectionComplete }
func (QueueState) Topic() Topic          { return TopicQueueState }
func (PlayerQueueState) Topic() Topic    { return TopicPlayerQueueState }
func (PartyChanged) Topic() Topic        { return TopicPlayerPartyState }
func (ServerSearching) Topic() Topic     { return TopicServerSearching }
func (OnlineUpdate) Topic() Topic        { return TopicOnlineUpdate }
func (PartyInviteReceived) Topic() Topic { return TopicPartyInviteReceived }
func (PartyInvitesState) Topic() Topic   { return TopicPartyInvitesState }
func (PartyInviteExpired) Topic() Topic  { return TopicPartyInviteExpired }
func (NotificationCreated) Topic() Topic { return TopicNotificationCreated }
func (PleaseEnterQueue) Topic() Topic    { return TopicPleaseEnterQueue }

func (m PlayerRoomState) Topic() Topic {
	if m.Found {
		return TopicPlayerRoomFound
	}
	return TopicPlayerRoomState
}

func (m PlayerGameState) Topic() Topic {
	if m.Ready {
		return TopicPlayerGameReady
	}
	return TopicPlayerGameState
}

func (ConnectionComplete) isMessage()  {}
func (QueueState) isMessage()          {}
func (PlayerQueueState) isMessage()    {}
func (PlayerRoomState) isMessage()     {}
func (PartyChanged) isMessage()        {}
func (PlayerGameState) isMessage()     {}
func (ServerSearching) isMessage()     {}
func (OnlineUpdate) isMessage()        {}
func (PartyInviteReceived) isMessage() {}
func (PartyInvitesState) isMessage()   {}
func (PartyInviteExpired) isMessage()  {}
func (NotificationCreated) isMessage() {}
func (PleaseEnterQueue) isMessage()    {}
