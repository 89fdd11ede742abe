package session

import (
	"slices"
	"strings"

	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

const unknownInviter = "Unknown"

func (c *Coordinator) addInvite(msg protocol.PartyInviteReceived) bool {
	id := strings.TrimSpace(msg.InviteID)
	if id == "" {
		c.logger.Warn("dropping party invite without id", "party_id", msg.PartyID)
		return false
	}
	if _, ok := c.loop.invites[id]; ok {
		return false
	}

	name := strings.TrimSpace(msg.Inviter.Name)
	if name == "" {
		name = unknownInviter
	}
	e := &inviteEntry{invite: model.PendingInvite{
		InviteID:    id,
		PartyID:     msg.PartyID,
		InviterID:   msg.Inviter.SteamID,
		InviterName: name,
		AvatarURL:   msg.Inviter.AvatarURL(),
		ReceivedAt:  c.clock.Now(),
	}}
	e.timer = c.clock.AfterFunc(c.cfg.inviteTimeout, func() {
		c.post(func() {
			if c.removeInvite(id, e) {
				c.logger.Info("party invite timed out", "invite_id", id)
				c.publishInvites()
			}
		})
	})

	c.loop.invites[id] = e
	c.loop.inviteOrder = append(c.loop.inviteOrder, id)
	c.logger.Info("party invite received", "invite_id", id, "inviter", name)
	return true
}

// removeInvite drops the invite if it is still the entry that was
// registered. A nil entry matches whatever is registered under id. Only
// the first of response, server expiry and timeout gets true.
func (c *Coordinator) removeInvite(id string, want *inviteEntry) bool {
	e, ok := c.loop.invites[id]
	if !ok || (want != nil && e != want) {
		return false
	}
	e.timer.Stop()
	delete(c.loop.invites, id)
	c.loop.inviteOrder = slices.DeleteFunc(c.loop.inviteOrder, func(s string) bool { return s == id })
	return true
}

func (c *Coordinator) onInvite(msg protocol.PartyInviteReceived) {
	if c.addInvite(msg) {
		c.publishInvites()
	}
}

func (c *Coordinator) onInvites(msg protocol.PartyInvitesState) {
	added := false
	for _, inv := range msg.Invitations {
		if c.addInvite(inv) {
			added = true
		}
	}
	if added {
		c.publishInvites()
	}
}

func (c *Coordinator) onInviteExpired(msg protocol.PartyInviteExpired) {
	if c.removeInvite(msg.InviteID, nil) {
		c.logger.Info("party invite expired by server", "invite_id", msg.InviteID)
		c.publishInvites()
	}
}

// RespondToInvite accepts or declines a pending invite. An invite that has
// already expired or been answered is ignored.
func (c *Coordinator) RespondToInvite(inviteID string, accept bool) {
	c.post(func() {
		if !c.removeInvite(inviteID, nil) {
			c.logger.Debug("ignoring response to unknown invite", "invite_id", inviteID)
			return
		}
		c.logger.Info("responding to party invite", "invite_id", inviteID, "accept", accept)
		c.commander.RespondToPartyInvite(inviteID, accept)
		c.publishInvites()
		if accept {
			c.requestPartyRefresh()
		}
	})
}

func (c *Coordinator) stopInvites() {
	for id, e := range c.loop.invites {
		e.timer.Stop()
		delete(c.loop.invites, id)
	}
	c.loop.inviteOrder = nil
}

func (c *Coordinator) publishInvites() {
	c.bus.Publish(event.NewInvitesChangedEvent(c.loop.pendingInvites()))
}
