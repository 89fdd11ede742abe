package session

import (
	"context"
	"slices"
	"time"

	"github.com/raulk/clock"

	"github.com/d2c-launcher/coordinator/internal/model"
)

// State is a point-in-time copy of everything the coordinator tracks.
type State struct {
	Connection model.ConnectionState

	Modes        []model.QueueMode
	Searching    bool
	QueuedModes  []int
	EnterQueueAt *time.Time
	Display      QueueDisplay

	ReadyCheck      model.ReadyCheck
	ServerSearching bool
	ServerURL       string

	Party     model.PartyRoster
	CanInvite bool
	CanLeave  bool

	Invites []model.PendingInvite

	Online     int
	Sessions   int
	Candidates []model.Candidate
}

func (s State) clone() State {
	out := s
	out.Modes = slices.Clone(s.Modes)
	out.QueuedModes = slices.Clone(s.QueuedModes)
	out.EnterQueueAt = cloneTime(s.EnterQueueAt)
	out.ReadyCheck.Room = s.ReadyCheck.Room.Clone()
	out.Party = cloneRoster(s.Party)
	out.Invites = slices.Clone(s.Invites)
	out.Candidates = slices.Clone(s.Candidates)
	return out
}

type inviteEntry struct {
	invite model.PendingInvite
	timer  *clock.Timer
}

// state is owned by the coordinator loop.
type state struct {
	connection  model.ConnectionState
	hasIdentity bool
	accountID   uint32

	modes        []model.QueueMode
	searching    bool
	queued       []int
	enterQueueAt *time.Time

	room            *model.Room
	roomCtx         context.Context
	roomCancel      context.CancelFunc
	resolving       map[string]struct{}
	hasAccepted     bool
	hasResponded    bool
	readyOpen       bool
	serverSearching bool
	serverURL       string

	party model.PartyRoster

	invites     map[string]*inviteEntry
	inviteOrder []string

	online   map[string]struct{}
	sessions int

	searchSeq    uint64
	searchQuery  string
	searchTimer  *clock.Timer
	searchCancel context.CancelFunc
	candidates   []model.Candidate
}

func newState() state {
	return state{
		invites: make(map[string]*inviteEntry),
		online:  make(map[string]struct{}),
	}
}

func (s *state) readyCheck() model.ReadyCheck {
	return model.ReadyCheck{
		Room:         s.room.Clone(),
		HasAccepted:  s.hasAccepted,
		HasResponded: s.hasResponded,
		Open:         s.readyOpen,
	}
}

func (s *state) cancelRoomLookups() {
	if s.roomCancel != nil {
		s.roomCancel()
		s.roomCtx, s.roomCancel = nil, nil
	}
}

func (s *state) pendingInvites() []model.PendingInvite {
	out := make([]model.PendingInvite, 0, len(s.inviteOrder))
	for _, id := range s.inviteOrder {
		if e, ok := s.invites[id]; ok {
			out = append(out, e.invite)
		}
	}
	return out
}

func (s *state) snapshot(c *Coordinator) State {
	return State{
		Connection:      s.connection,
		Modes:           slices.Clone(s.modes),
		Searching:       s.searching,
		QueuedModes:     slices.Clone(s.queued),
		EnterQueueAt:    cloneTime(s.enterQueueAt),
		Display:         c.queueDisplay(),
		ReadyCheck:      s.readyCheck(),
		ServerSearching: s.serverSearching,
		ServerURL:       s.serverURL,
		Party:           cloneRoster(s.party),
		CanInvite:       s.party.Len() < c.cfg.maxPartySize,
		CanLeave:        s.party.Len() > 1,
		Invites:         s.pendingInvites(),
		Online:          len(s.online),
		Sessions:        s.sessions,
		Candidates:      slices.Clone(s.candidates),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRoster(r model.PartyRoster) model.PartyRoster {
	r.Members = slices.Clone(r.Members)
	r.EnterQueueAt = cloneTime(r.EnterQueueAt)
	return r
}
