package session

import (
	"context"
	"strings"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
)

// RequestPartyRefresh fetches a fresh roster. Requests made while one is
// in flight for the same token join it instead of queueing another.
func (c *Coordinator) RequestPartyRefresh() {
	c.post(c.requestPartyRefresh)
}

func (c *Coordinator) requestPartyRefresh() {
	token := c.tokens.AccessToken()
	if token == "" {
		c.logger.Debug("party refresh skipped: no access token")
		c.clearParty()
		return
	}
	c.spawn(func(ctx context.Context) {
		_, _, _ = c.refresh.Do(token, func() (any, error) {
			roster, err := c.backend.GetMyPartySnapshot(ctx, token)
			c.post(func() { c.applyParty(token, roster, err) })
			return nil, nil
		})
	})
}

func (c *Coordinator) applyParty(token string, roster model.PartyRoster, err error) {
	if token != c.tokens.AccessToken() {
		c.logger.Debug("discarding party snapshot for a replaced token")
		return
	}
	if err != nil {
		if errors.IsCanceled(err) {
			return
		}
		c.logger.Warn("party refresh failed, clearing roster", "error", err)
		c.clearParty()
		return
	}

	c.loop.party = roster
	c.loop.enterQueueAt = cloneTime(roster.EnterQueueAt)
	c.applyRestrictions()
	c.logger.Debug("party refreshed", "party_id", roster.PartyID, "members", roster.Len())
	c.publishParty()
	c.publishQueue()
}

// clearParty drops the roster and everything derived from it.
func (c *Coordinator) clearParty() {
	c.loop.party = model.PartyRoster{}
	c.loop.enterQueueAt = nil
	c.applyRestrictions()
	c.publishParty()
	c.publishQueue()
}

// InvitePlayer invites a player into the local party. It fails when the
// party is full or the coordinator is not running.
func (c *Coordinator) InvitePlayer(playerID string) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "invite player")
	}
	var err error
	if !c.call(func() { err = c.invitePlayer(playerID) }) {
		return errNotRunning
	}
	return err
}

func (c *Coordinator) invitePlayer(playerID string) error {
	if c.loop.party.Len() >= c.cfg.maxPartySize {
		return errors.ErrPartyFull
	}
	c.logger.Info("inviting player", "player_id", playerID)
	c.commander.InviteToParty(playerID)
	return nil
}

// LeaveParty leaves the current party.
func (c *Coordinator) LeaveParty() {
	c.post(func() {
		c.logger.Info("leaving party", "members", c.loop.party.Len())
		c.commander.LeaveParty()
	})
}

func (c *Coordinator) publishParty() {
	n := c.loop.party.Len()
	c.bus.Publish(event.NewPartyChangedEvent(
		cloneRoster(c.loop.party),
		n < c.cfg.maxPartySize,
		n > 1,
	))
}
