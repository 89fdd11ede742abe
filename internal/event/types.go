package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType follows "category.action", e.g. "identity.changed".
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Event types published by the coordinator.
const (
	TypeIdentityStatusChanged = "identity.status_changed"
	TypeIdentityChanged       = "identity.changed"
	TypeCredentialChanged     = "identity.credential_changed"
	TypeTokenChanged          = "auth.token_changed"
	TypeConnectionChanged     = "channel.state_changed"
	TypeQueueChanged          = "session.queue_changed"
	TypeQueueTick             = "session.queue_tick"
	TypeRoomChanged           = "session.room_changed"
	TypePartyChanged          = "session.party_changed"
	TypeInvitesChanged        = "session.invites_changed"
	TypeGameChanged           = "session.game_changed"
	TypeOnlineChanged         = "session.online_changed"
	TypeCandidatesChanged     = "session.candidates_changed"
	TypeNotification          = "session.notification"
	TypeRequeueRequested      = "session.requeue_requested"
)

// -----------------------------------------------------------------------------
// Identity Events
// -----------------------------------------------------------------------------

// IdentityStatusChangedEvent is emitted when the provider status changes.
type IdentityStatusChangedEvent struct {
	baseEvent
	Previous model.IdentityStatus
	Current  model.IdentityStatus
}

// NewIdentityStatusChangedEvent creates an IdentityStatusChangedEvent.
func NewIdentityStatusChangedEvent(prev, cur model.IdentityStatus) IdentityStatusChangedEvent {
	return IdentityStatusChangedEvent{
		baseEvent: newBaseEvent(TypeIdentityStatusChanged),
		Previous:  prev,
		Current:   cur,
	}
}

// IdentityChangedEvent carries the new identity, or nil when it was cleared.
type IdentityChangedEvent struct {
	baseEvent
	Identity *model.Identity
}

// NewIdentityChangedEvent creates an IdentityChangedEvent.
func NewIdentityChangedEvent(id *model.Identity) IdentityChangedEvent {
	return IdentityChangedEvent{baseEvent: newBaseEvent(TypeIdentityChanged), Identity: id}
}

// CredentialChangedEvent carries the new session credential, or "" when it
// was cleared.
type CredentialChangedEvent struct {
	baseEvent
	Credential string
}

// NewCredentialChangedEvent creates a CredentialChangedEvent.
func NewCredentialChangedEvent(credential string) CredentialChangedEvent {
	return CredentialChangedEvent{baseEvent: newBaseEvent(TypeCredentialChanged), Credential: credential}
}

// -----------------------------------------------------------------------------
// Auth and Channel Events
// -----------------------------------------------------------------------------

// TokenChangedEvent reports that the backend access token was stored or
// cleared. The token itself is not carried.
type TokenChangedEvent struct {
	baseEvent
	HasToken    bool
	Fingerprint string
}

// NewTokenChangedEvent creates a TokenChangedEvent.
func NewTokenChangedEvent(hasToken bool, fingerprint string) TokenChangedEvent {
	return TokenChangedEvent{
		baseEvent:   newBaseEvent(TypeTokenChanged),
		HasToken:    hasToken,
		Fingerprint: fingerprint,
	}
}

// ConnectionChangedEvent is emitted on every channel state transition.
type ConnectionChangedEvent struct {
	baseEvent
	Previous model.ConnectionState
	Current  model.ConnectionState
}

// NewConnectionChangedEvent creates a ConnectionChangedEvent.
func NewConnectionChangedEvent(prev, cur model.ConnectionState) ConnectionChangedEvent {
	return ConnectionChangedEvent{
		baseEvent: newBaseEvent(TypeConnectionChanged),
		Previous:  prev,
		Current:   cur,
	}
}

// MessageEvent republishes a decoded inbound channel message. Its event
// type is MessageType(topic).
type MessageEvent struct {
	baseEvent
	Message protocol.Message
}

// MessageType returns the bus event type for an inbound topic, e.g.
// "gc.player_room_state".
func MessageType(topic protocol.Topic) string {
	return "gc." + strings.ToLower(string(topic))
}

// NewMessageEvent creates a MessageEvent.
func NewMessageEvent(msg protocol.Message) MessageEvent {
	return MessageEvent{baseEvent: newBaseEvent(MessageType(msg.Topic())), Message: msg}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// QueueChangedEvent carries the mode list and the local queue membership.
type QueueChangedEvent struct {
	baseEvent
	Modes        []model.QueueMode
	Searching    bool
	QueuedModes  []int
	EnterQueueAt *time.Time
}

// NewQueueChangedEvent creates a QueueChangedEvent.
func NewQueueChangedEvent(modes []model.QueueMode, searching bool, queued []int, enterQueueAt *time.Time) QueueChangedEvent {
	return QueueChangedEvent{
		baseEvent:    newBaseEvent(TypeQueueChanged),
		Modes:        modes,
		Searching:    searching,
		QueuedModes:  queued,
		EnterQueueAt: enterQueueAt,
	}
}

// QueueTickEvent is emitted once a second while searching, for the elapsed
// time display.
type QueueTickEvent struct {
	baseEvent
	Elapsed time.Duration
	Label   string
}

// NewQueueTickEvent creates a QueueTickEvent.
func NewQueueTickEvent(elapsed time.Duration, label string) QueueTickEvent {
	return QueueTickEvent{baseEvent: newBaseEvent(TypeQueueTick), Elapsed: elapsed, Label: label}
}

// RoomChangedEvent carries the ready-check view. ReadyCheck.Room is nil
// once the room is cleared.
type RoomChangedEvent struct {
	baseEvent
	ReadyCheck model.ReadyCheck
}

// NewRoomChangedEvent creates a RoomChangedEvent.
func NewRoomChangedEvent(rc model.ReadyCheck) RoomChangedEvent {
	return RoomChangedEvent{baseEvent: newBaseEvent(TypeRoomChanged), ReadyCheck: rc}
}

// PartyChangedEvent carries the current roster and derived capabilities.
type PartyChangedEvent struct {
	baseEvent
	Roster    model.PartyRoster
	CanInvite bool
	CanLeave  bool
}

// NewPartyChangedEvent creates a PartyChangedEvent.
func NewPartyChangedEvent(roster model.PartyRoster, canInvite, canLeave bool) PartyChangedEvent {
	return PartyChangedEvent{
		baseEvent: newBaseEvent(TypePartyChanged),
		Roster:    roster,
		CanInvite: canInvite,
		CanLeave:  canLeave,
	}
}

// InvitesChangedEvent carries all pending invites, oldest first.
type InvitesChangedEvent struct {
	baseEvent
	Invites []model.PendingInvite
}

// NewInvitesChangedEvent creates an InvitesChangedEvent.
func NewInvitesChangedEvent(invites []model.PendingInvite) InvitesChangedEvent {
	return InvitesChangedEvent{baseEvent: newBaseEvent(TypeInvitesChanged), Invites: invites}
}

// GameChangedEvent reports the assigned game server and the server search
// flag. ServerURL is empty when no game is assigned.
type GameChangedEvent struct {
	baseEvent
	ServerURL string
	Searching bool
}

// NewGameChangedEvent creates a GameChangedEvent.
func NewGameChangedEvent(serverURL string, searching bool) GameChangedEvent {
	return GameChangedEvent{baseEvent: newBaseEvent(TypeGameChanged), ServerURL: serverURL, Searching: searching}
}

// OnlineChangedEvent carries the online player count and session count.
type OnlineChangedEvent struct {
	baseEvent
	Online   int
	Sessions int
}

// NewOnlineChangedEvent creates an OnlineChangedEvent.
func NewOnlineChangedEvent(online, sessions int) OnlineChangedEvent {
	return OnlineChangedEvent{baseEvent: newBaseEvent(TypeOnlineChanged), Online: online, Sessions: sessions}
}

// CandidatesChangedEvent carries invite-search results for Query.
type CandidatesChangedEvent struct {
	baseEvent
	Query      string
	Candidates []model.Candidate
}

// NewCandidatesChangedEvent creates a CandidatesChangedEvent.
func NewCandidatesChangedEvent(query string, candidates []model.Candidate) CandidatesChangedEvent {
	return CandidatesChangedEvent{
		baseEvent:  newBaseEvent(TypeCandidatesChanged),
		Query:      query,
		Candidates: candidates,
	}
}

// NotificationEvent forwards a backend notification unchanged.
type NotificationEvent struct {
	baseEvent
	Payload json.RawMessage
}

// NewNotificationEvent creates a NotificationEvent.
func NewNotificationEvent(payload json.RawMessage) NotificationEvent {
	return NotificationEvent{baseEvent: newBaseEvent(TypeNotification), Payload: payload}
}

// RequeueRequestedEvent forwards the server's requeue nudge.
type RequeueRequestedEvent struct {
	baseEvent
	Mode    int
	InQueue int
}

// NewRequeueRequestedEvent creates a RequeueRequestedEvent.
func NewRequeueRequestedEvent(mode, inQueue int) RequeueRequestedEvent {
	return RequeueRequestedEvent{baseEvent: newBaseEvent(TypeRequeueRequested), Mode: mode, InQueue: inQueue}
}
