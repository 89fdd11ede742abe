package model

import "time"

// ReadyState is a player's response in a ready-check room. The numeric
// values match the backend wire encoding.
type ReadyState int

const (
	ReadyStateReady ReadyState = iota
	ReadyStateDecline
	ReadyStateTimeout
	ReadyStatePending
)

func (s ReadyState) String() string {
	switch s {
	case ReadyStateReady:
		return "Ready"
	case ReadyStateDecline:
		return "Decline"
	case ReadyStateTimeout:
		return "Timeout"
	case ReadyStatePending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// QueueMode is a selectable matchmaking mode with its live counter.
type QueueMode struct {
	ID          int
	Name        string
	Selected    bool
	InQueue     int
	Restriction string
}

// Restricted reports whether some party member blocks this mode.
func (m QueueMode) Restricted() bool { return m.Restriction != "" }

// RoomEntry is one player in a ready-check room.
type RoomEntry struct {
	PlayerID  string
	State     ReadyState
	Name      string
	AvatarURL string
	Resolved  bool
}

// Room is an active ready-check.
type Room struct {
	ID        string
	Mode      int
	Entries   []RoomEntry
	CreatedAt time.Time
}

// Entry returns the entry for playerID.
func (r *Room) Entry(playerID string) (RoomEntry, bool) {
	if r == nil {
		return RoomEntry{}, false
	}
	for _, e := range r.Entries {
		if e.PlayerID == playerID {
			return e, true
		}
	}
	return RoomEntry{}, false
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Entries = append([]RoomEntry(nil), r.Entries...)
	return &c
}

// ReadyCheck is the local player's view of the current room.
type ReadyCheck struct {
	Room         *Room
	HasAccepted  bool
	HasResponded bool
	Open         bool
}

// AccessMap lists the mode categories a player may queue for.
type AccessMap struct {
	HumanGames  bool
	SimpleModes bool
	Education   bool
}

// AllowAll grants every category.
func AllowAll() AccessMap {
	return AccessMap{HumanGames: true, SimpleModes: true, Education: true}
}

// BanStatus is a party member's matchmaking ban.
type BanStatus struct {
	IsBanned bool
	// BannedUntil is the raw end date from the backend. Empty or
	// unparseable means permanent.
	BannedUntil string
}

// PartyMember is one entry of the party roster.
type PartyMember struct {
	PlayerID  string
	Name      string
	AvatarURL string
	Ban       BanStatus
	Access    AccessMap
	IsLeader  bool
}

// PartyRoster is a full party snapshot.
type PartyRoster struct {
	PartyID      string
	Members      []PartyMember
	EnterQueueAt *time.Time
}

// Len returns the number of members.
func (p *PartyRoster) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Members)
}

// PendingInvite is an unanswered invitation into someone else's party.
type PendingInvite struct {
	InviteID    string
	PartyID     string
	InviterID   string
	InviterName string
	AvatarURL   string
	ReceivedAt  time.Time
}

// PlayerInfo is a resolved display name and avatar for a player id.
type PlayerInfo struct {
	PlayerID  string
	Name      string
	AvatarURL string
}

// Candidate is an invite-search result.
type Candidate struct {
	PlayerInfo
	Online bool
}
