package identity

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/model"
)

// ProcessScanner reports whether a named process is running.
type ProcessScanner interface {
	Running(ctx context.Context, name string) (bool, error)
}

// ActiveUserReader reads the provider's persisted active-user marker.
// It returns 0 when no user is signed in or the marker is unreadable.
type ActiveUserReader interface {
	ActiveUser() uint64
}

// HelperQuerier obtains one identity snapshot.
type HelperQuerier interface {
	Query(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the helper's stdout record. Field matching is
// case-insensitive, so both camelCase and PascalCase producers decode.
type Snapshot struct {
	Status       string   `json:"status"`
	SteamID      flexUint `json:"steamId"`
	PersonaName  string   `json:"personaName"`
	AvatarRGBA   []byte   `json:"avatarRgba"`
	AvatarWidth  int      `json:"avatarWidth"`
	AvatarHeight int      `json:"avatarHeight"`
	AuthTicket   string   `json:"authTicket"`
}

// Resolve validates the snapshot and returns the identity and credential.
// The credential may be empty when the provider has not issued one yet.
func (s *Snapshot) Resolve() (*model.Identity, string, error) {
	if s == nil {
		return nil, "", errors.ErrMalformedSnapshot
	}
	if status := model.ParseIdentityStatus(s.Status); status != model.StatusRunning {
		return nil, "", errors.Wrapf(errors.ErrProviderNotRunning, "helper reported %s", status)
	}
	name := strings.TrimSpace(s.PersonaName)
	if s.SteamID == 0 || name == "" {
		return nil, "", errors.Wrap(errors.ErrMalformedSnapshot, "missing user id or name")
	}

	id := &model.Identity{ID: uint64(s.SteamID), Name: name}
	if s.AvatarWidth > 0 && s.AvatarHeight > 0 && len(s.AvatarRGBA) == s.AvatarWidth*s.AvatarHeight*4 {
		id.Avatar = &model.Avatar{
			Pixels: s.AvatarRGBA,
			Width:  s.AvatarWidth,
			Height: s.AvatarHeight,
		}
	}
	return id, strings.TrimSpace(s.AuthTicket), nil
}

// Redacted returns a copy safe to print: pixel data dropped and the
// credential replaced by its length.
func (s Snapshot) Redacted() map[string]any {
	out := map[string]any{
		"status":       s.Status,
		"steamId":      uint64(s.SteamID),
		"personaName":  s.PersonaName,
		"avatarWidth":  s.AvatarWidth,
		"avatarHeight": s.AvatarHeight,
		"avatarBytes":  len(s.AvatarRGBA),
	}
	if s.AuthTicket != "" {
		out["authTicket"] = "<redacted " + strconv.Itoa(len(s.AuthTicket)) + " chars>"
	}
	return out
}

// flexUint decodes a JSON number or numeric string.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(v)
	return nil
}
