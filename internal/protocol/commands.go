package protocol

// EnterQueue asks to queue the local party for modes.
type EnterQueue struct {
	Modes []Mode `json:"modes"`
}

// SetReadyCheck answers a ready-check.
type SetReadyCheck struct {
	RoomID string `json:"roomId"`
	Accept bool   `json:"accept"`
}

// InviteToParty invites a player into the local party.
type InviteToParty struct {
	InvitedPlayerID string `json:"invitedPlayerId"`
}

// AcceptPartyInvite answers an invitation.
type AcceptPartyInvite struct {
	InviteID string `json:"inviteId"`
	Accept   bool   `json:"accept"`
}
