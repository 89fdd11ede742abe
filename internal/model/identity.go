package model

import "bytes"

// IdentityStatus is the coarse state of the platform identity provider.
type IdentityStatus int

const (
	// StatusNotRunning means the provider process is absent.
	StatusNotRunning IdentityStatus = iota
	// StatusOffline means the provider runs but no user is signed in.
	StatusOffline
	// StatusRunning means a user is signed in.
	StatusRunning
)

func (s IdentityStatus) String() string {
	switch s {
	case StatusNotRunning:
		return "NotRunning"
	case StatusOffline:
		return "Offline"
	case StatusRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// ParseIdentityStatus maps the helper's status string to an IdentityStatus.
// Unrecognized values map to StatusOffline.
func ParseIdentityStatus(s string) IdentityStatus {
	switch s {
	case "NotRunning":
		return StatusNotRunning
	case "Running":
		return StatusRunning
	default:
		return StatusOffline
	}
}

// Avatar is a raw RGBA bitmap. Len(Pixels) == Width*Height*4.
type Avatar struct {
	Pixels []byte
	Width  int
	Height int
}

// Identity is the signed-in provider user. Treat values as immutable.
type Identity struct {
	ID     uint64
	Name   string
	Avatar *Avatar
}

// AccountID returns the 32-bit account id the matchmaking backend uses for
// this identity.
func (i *Identity) AccountID() uint32 {
	if i == nil {
		return 0
	}
	return AccountID(i.ID)
}

// AccountID derives the 32-bit account id from a 64-bit provider id by
// keeping the lower 32 bits.
func AccountID(id uint64) uint32 {
	return uint32(id & 0xFFFFFFFF)
}

// IdentityEqual reports whether a and b describe the same user with the same
// name and byte-identical avatar. Two nils are equal.
func IdentityEqual(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Name != b.Name {
		return false
	}
	if (a.Avatar == nil) != (b.Avatar == nil) {
		return false
	}
	if a.Avatar == nil {
		return true
	}
	return a.Avatar.Width == b.Avatar.Width &&
		a.Avatar.Height == b.Avatar.Height &&
		bytes.Equal(a.Avatar.Pixels, b.Avatar.Pixels)
}
