// Package protocol defines the Game Coordinator wire contract: the closed
// set of inbound topics with their payload schemas, the outbound commands,
// and a strict decode-or-drop registry.
package protocol

import "strconv"

// SchemaVersion identifies the topic table below. Bump it whenever a topic
// is added or a payload shape changes.
const SchemaVersion = 1

// Topic names an inbound server event.
type Topic string

const (
	TopicConnectionComplete  Topic = "CONNECTION_COMPLETE"
	TopicQueueState          Topic = "QUEUE_STATE"
	TopicPlayerQueueState    Topic = "PLAYER_QUEUE_STATE"
	TopicPlayerRoomState     Topic = "PLAYER_ROOM_STATE"
	TopicPlayerRoomFound     Topic = "PLAYER_ROOM_FOUND"
	TopicPlayerPartyState    Topic = "PLAYER_PARTY_STATE"
	TopicPlayerGameState     Topic = "PLAYER_GAME_STATE"
	TopicPlayerGameReady     Topic = "PLAYER_GAME_READY"
	TopicServerSearching     Topic = "PLAYER_SERVER_SEARCHING"
	TopicOnlineUpdate        Topic = "ONLINE_UPDATE"
	TopicPartyInvitesState   Topic = "PLAYER_PARTY_INVITES_STATE"
	TopicPartyInviteReceived Topic = "PARTY_INVITE_RECEIVED"
	TopicPartyInviteExpired  Topic = "PARTY_INVITE_EXPIRED"
	TopicNotificationCreated Topic = "NOTIFICATION_CREATED"
	TopicPleaseEnterQueue    Topic = "GO_QUEUE"
)

// Command names an outbound client event.
type Command string

const (
	CommandEnterQueue        Command = "ENTER_QUEUE"
	CommandLeaveAllQueues    Command = "LEAVE_ALL_QUEUES"
	CommandSetReadyCheck     Command = "SET_READY_CHECK"
	CommandInviteToParty     Command = "INVITE_TO_PARTY"
	CommandAcceptPartyInvite Command = "ACCEPT_PARTY_INVITE"
	CommandLeaveParty        Command = "LEAVE_PARTY"
)

// Mode is a matchmaking mode id as used on the wire.
type Mode int

const (
	ModeRanked Mode = iota
	ModeUnranked
	ModeSoloMid
	ModeDiretide
	ModeGreeviling
	ModeAbilityDraft
	ModeTournament
	ModeBots
	ModeHighroom
	ModeTournamentSolo
	ModeCaptainsMode
	ModeLobby
	ModeBotsTwoVsTwo
	ModeTurbo
)

var modeLabels = map[Mode]string{
	ModeRanked:         "Ranked 5x5",
	ModeUnranked:       "Unranked 5x5",
	ModeSoloMid:        "1x1 Mid",
	ModeDiretide:       "Diretide",
	ModeGreeviling:     "Greeviling",
	ModeAbilityDraft:   "Ability Draft",
	ModeTournament:     "Tournament",
	ModeBots:           "Bots",
	ModeHighroom:       "Highroom 5x5",
	ModeTournamentSolo: "Tournament 1x1",
	ModeCaptainsMode:   "Captains Mode",
	ModeLobby:          "Lobby",
	ModeBotsTwoVsTwo:   "2x2 with bots",
	ModeTurbo:          "Turbo",
}

// Label returns the display label, or "Mode N" for unknown ids.
func (m Mode) Label() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return "Mode " + strconv.Itoa(int(m))
}
