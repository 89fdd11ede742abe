package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/d2c-launcher/coordinator/internal/protocol"
)

type partyDTO struct {
	ID           string           `json:"id"`
	Leader       *protocol.User   `json:"leader"`
	Players      []partyPlayerDTO `json:"players"`
	EnterQueueAt string           `json:"enterQueueAt"`
}

type partyPlayerDTO struct {
	Summary *summaryDTO `json:"summary"`
}

type summaryDTO struct {
	User      *protocol.User `json:"user"`
	BanStatus *banDTO        `json:"banStatus"`
	AccessMap *accessDTO     `json:"accessMap"`
}

type banDTO struct {
	IsBanned    bool   `json:"isBanned"`
	BannedUntil string `json:"bannedUntil"`
}

// accessDTO uses pointers so an absent flag defaults to allowed.
type accessDTO struct {
	HumanGames  *bool `json:"humanGames"`
	SimpleModes *bool `json:"simpleModes"`
	Education   *bool `json:"education"`
}

type modeDTO struct {
	LobbyType int  `json:"lobby_type"`
	Enabled   bool `json:"enabled"`
}

// flexInt decodes a JSON number or a numeric string. Anything else is 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			*f = flexInt(v)
			return nil
		}
		if v, err := n.Float64(); err == nil {
			*f = flexInt(int(v))
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = flexInt(v)
			return nil
		}
	}
	*f = 0
	return nil
}

type onlineDTO struct {
	InGame   flexInt `json:"inGame"`
	Sessions flexInt `json:"sessions"`
}

func allowed(flag *bool) bool {
	return flag == nil || *flag
}
