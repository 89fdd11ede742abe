package session

import (
	"context"
	"strconv"

	"github.com/sourcegraph/conc"

	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

func readyState(wire int) model.ReadyState {
	switch s := model.ReadyState(wire); s {
	case model.ReadyStateReady, model.ReadyStateDecline, model.ReadyStateTimeout, model.ReadyStatePending:
		return s
	default:
		return model.ReadyStatePending
	}
}

func (c *Coordinator) onRoom(msg protocol.PlayerRoomState) {
	if msg.Room == nil {
		c.logger.Info("room cleared by server")
		c.clearRoom()
		return
	}
	r := msg.Room
	prev := c.loop.room
	same := prev != nil && prev.ID == r.RoomID

	next := &model.Room{ID: r.RoomID, Mode: int(r.Mode), CreatedAt: c.clock.Now()}
	if same {
		next.CreatedAt = prev.CreatedAt
	} else {
		c.loop.cancelRoomLookups()
		c.loop.resolving = make(map[string]struct{})
	}

	var lookups []string
	for _, e := range r.Entries {
		if e.SteamID == "" {
			continue
		}
		entry := model.RoomEntry{PlayerID: e.SteamID, State: readyState(e.State), Name: e.SteamID}
		if same {
			if old, ok := prev.Entry(e.SteamID); ok {
				entry.Name, entry.AvatarURL, entry.Resolved = old.Name, old.AvatarURL, old.Resolved
			}
		}
		if _, seen := c.loop.resolving[e.SteamID]; !seen {
			c.loop.resolving[e.SteamID] = struct{}{}
			lookups = append(lookups, e.SteamID)
		}
		next.Entries = append(next.Entries, entry)
	}

	c.loop.room = next
	c.loop.readyOpen = true
	c.updateLocalEntry()
	c.logger.Info("room state",
		"room_id", next.ID,
		"mode", next.Mode,
		"entries", len(next.Entries),
		"lookups", len(lookups),
	)
	c.publishRoom()

	if len(lookups) > 0 {
		c.resolveRoomPlayers(next.ID, lookups)
	}
}

// resolveRoomPlayers looks names up concurrently. Each result is posted
// back and applied only if the room has not been superseded.
func (c *Coordinator) resolveRoomPlayers(roomID string, ids []string) {
	token := c.tokens.AccessToken()
	if token == "" {
		c.logger.Debug("room lookups skipped: no access token", "room_id", roomID)
		for _, id := range ids {
			delete(c.loop.resolving, id)
		}
		return
	}
	if c.loop.roomCancel == nil {
		c.loop.roomCtx, c.loop.roomCancel = context.WithCancel(c.ctx)
	}
	roomCtx := c.loop.roomCtx

	c.spawn(func(context.Context) {
		var wg conc.WaitGroup
		for _, id := range ids {
			wg.Go(func() {
				info, err := c.backend.GetUserInfo(roomCtx, id, token)
				c.post(func() { c.applyRoomLookup(roomID, id, info, err) })
			})
		}
		if r := wg.WaitAndRecover(); r != nil {
			c.logger.Error("room lookup panicked", "room_id", roomID, "panic", r.String())
		}
	})
}

func (c *Coordinator) applyRoomLookup(roomID, playerID string, info model.PlayerInfo, err error) {
	room := c.loop.room
	if room == nil || room.ID != roomID {
		c.logger.Debug("discarding lookup for superseded room",
			"room_id", roomID,
			"player_id", playerID,
		)
		return
	}
	if err != nil {
		c.logger.Warn("player lookup failed", "player_id", playerID, "error", err)
		return
	}
	for i := range room.Entries {
		e := &room.Entries[i]
		if e.PlayerID != playerID {
			continue
		}
		if info.Name != "" {
			e.Name = info.Name
		}
		e.AvatarURL = info.AvatarURL
		e.Resolved = true
		c.publishRoom()
		return
	}
}

// updateLocalEntry derives the local player's response from the room. The
// backend keys room entries by the 32-bit account id.
func (c *Coordinator) updateLocalEntry() {
	c.loop.hasAccepted, c.loop.hasResponded = false, false
	if !c.loop.hasIdentity {
		return
	}
	me := strconv.FormatUint(uint64(c.loop.accountID), 10)
	if e, ok := c.loop.room.Entry(me); ok {
		c.loop.hasAccepted = e.State == model.ReadyStateReady
		c.loop.hasResponded = e.State != model.ReadyStatePending
	}
}

func (c *Coordinator) clearRoom() {
	s := &c.loop
	s.cancelRoomLookups()
	s.resolving = nil
	if s.room == nil && !s.readyOpen && !s.hasAccepted && !s.hasResponded {
		return
	}
	s.room = nil
	s.readyOpen = false
	s.hasAccepted = false
	s.hasResponded = false
	c.publishRoom()
}

// AcceptGame accepts the current ready check. Without a room it does
// nothing.
func (c *Coordinator) AcceptGame() {
	c.post(func() {
		if c.loop.room == nil {
			return
		}
		c.logger.Info("accepting game", "room_id", c.loop.room.ID)
		c.commander.SetReadyCheck(c.loop.room.ID, true)
	})
}

// DeclineGame declines the current ready check and clears the room
// locally. Without a room it does nothing.
func (c *Coordinator) DeclineGame() {
	c.post(func() {
		if c.loop.room == nil {
			return
		}
		c.logger.Info("declining game", "room_id", c.loop.room.ID)
		c.commander.SetReadyCheck(c.loop.room.ID, false)
		c.clearRoom()
	})
}

func (c *Coordinator) onGame(msg protocol.PlayerGameState) {
	url := ""
	if msg.Game != nil {
		url = msg.Game.ServerURL
	}
	if url == "" {
		if c.loop.serverURL != "" {
			c.loop.serverURL = ""
			c.publishGame()
		}
		return
	}

	c.logger.Info("game ready", "server_url", url)
	c.loop.serverURL = url
	if c.loop.readyOpen || c.loop.serverSearching {
		c.loop.readyOpen = false
		c.loop.serverSearching = false
		c.publishRoom()
	}
	c.publishGame()
}

func (c *Coordinator) onServerSearching(msg protocol.ServerSearching) {
	if c.loop.serverSearching == msg.Searching && (!msg.Searching || c.loop.readyOpen) {
		return
	}
	c.loop.serverSearching = msg.Searching
	if msg.Searching {
		c.loop.readyOpen = true
	}
	c.publishRoom()
	c.publishGame()
}

func (c *Coordinator) publishRoom() {
	c.bus.Publish(event.NewRoomChangedEvent(c.loop.readyCheck()))
}

func (c *Coordinator) publishGame() {
	c.bus.Publish(event.NewGameChangedEvent(c.loop.serverURL, c.loop.serverSearching))
}
