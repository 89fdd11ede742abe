package session

import (
	"strings"
	"time"

	"github.com/d2c-launcher/coordinator/internal/model"
)

// Category is the access class a mode belongs to.
type Category int

const (
	CategoryOther Category = iota
	CategoryHuman
	CategorySimple
	CategoryEducation
)

func (c Category) String() string {
	switch c {
	case CategoryHuman:
		return "human"
	case CategorySimple:
		return "simple"
	case CategoryEducation:
		return "education"
	default:
		return "other"
	}
}

var modeCategories = map[int]Category{
	0: CategoryHuman, 1: CategoryHuman, 3: CategoryHuman, 4: CategoryHuman,
	5: CategoryHuman, 6: CategoryHuman, 8: CategoryHuman, 9: CategoryHuman,
	10: CategoryHuman, 11: CategoryHuman,
	2: CategorySimple, 13: CategorySimple,
	7: CategoryEducation, 12: CategoryEducation,
}

// Classify returns the access category of a mode id.
func Classify(mode int) Category {
	return modeCategories[mode]
}

// Restriction messages.
const (
	MsgPermanentBan = "Account is permanently banned"
	MsgNoAccess     = "No access to this mode"
	banUntilPrefix  = "Matchmaking is banned until "
	banDateLayout   = "02.01.2006, 15:04"
)

var banLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseBanUntil reads a ban end date. Offset-less values are UTC.
func parseBanUntil(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range banLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// IsPermanentBan reports whether bannedUntil is missing, unparseable or
// more than two years after now.
func IsPermanentBan(bannedUntil string, now time.Time) bool {
	until, ok := parseBanUntil(bannedUntil)
	if !ok {
		return true
	}
	return until.After(now.AddDate(2, 0, 0))
}

// CanPlay reports whether a party member may queue for mode.
func CanPlay(m model.PartyMember, mode int, now time.Time) bool {
	cat := Classify(mode)
	if m.Ban.IsBanned {
		if IsPermanentBan(m.Ban.BannedUntil, now) {
			return false
		}
		return cat != CategoryHuman
	}
	switch cat {
	case CategoryHuman:
		return m.Access.HumanGames
	case CategorySimple:
		return m.Access.SimpleModes
	case CategoryEducation:
		return m.Access.Education
	default:
		return true
	}
}

// Restriction returns why the party cannot queue for mode, taken from the
// first member who cannot, or "" when everyone can.
func Restriction(members []model.PartyMember, mode int, now time.Time, loc *time.Location) string {
	for _, m := range members {
		if !CanPlay(m, mode, now) {
			return restrictionMessage(m, now, loc)
		}
	}
	return ""
}

func restrictionMessage(m model.PartyMember, now time.Time, loc *time.Location) string {
	if !m.Ban.IsBanned {
		return MsgNoAccess
	}
	if IsPermanentBan(m.Ban.BannedUntil, now) {
		return MsgPermanentBan
	}
	until, _ := parseBanUntil(m.Ban.BannedUntil)
	if loc == nil {
		loc = time.Local
	}
	return banUntilPrefix + until.In(loc).Format(banDateLayout)
}

// applyRestrictions recomputes every mode's restriction from the roster.
func (c *Coordinator) applyRestrictions() {
	now := c.clock.Now()
	for i := range c.loop.modes {
		c.loop.modes[i].Restriction = Restriction(c.loop.party.Members, c.loop.modes[i].ID, now, c.cfg.location)
	}
}
