package session

import (
	"context"
	"strings"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

// SearchCandidates schedules an invite-candidate search. Only the last
// query typed within the debounce window runs, and a newer query cancels
// any search still in flight. A blank query clears the results.
func (c *Coordinator) SearchCandidates(query string) {
	c.post(func() { c.scheduleSearch(query) })
}

func (c *Coordinator) scheduleSearch(query string) {
	s := &c.loop
	s.searchSeq++
	seq := s.searchSeq
	query = strings.TrimSpace(query)
	s.searchQuery = query
	c.stopSearch()

	s.searchTimer = c.clock.AfterFunc(c.cfg.searchDebounce, func() {
		c.post(func() { c.runSearch(seq, query) })
	})
}

func (c *Coordinator) runSearch(seq uint64, query string) {
	if seq != c.loop.searchSeq {
		return
	}
	c.loop.searchTimer = nil
	if query == "" {
		c.loop.candidates = nil
		c.publishCandidates()
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.loop.searchCancel = cancel
	limit := c.cfg.searchLimit
	started := c.spawn(func(context.Context) {
		defer cancel()
		players, err := c.backend.SearchPlayers(ctx, query, limit)
		c.post(func() { c.applySearch(seq, query, players, err) })
	})
	if !started {
		cancel()
	}
}

func (c *Coordinator) applySearch(seq uint64, query string, players []model.PlayerInfo, err error) {
	if seq != c.loop.searchSeq {
		return
	}
	c.loop.searchCancel = nil
	if err != nil {
		if !errors.IsCanceled(err) {
			c.logger.Warn("player search failed", "query", query, "error", err)
		}
		return
	}

	out := make([]model.Candidate, 0, len(players))
	for _, p := range players {
		_, online := c.loop.online[p.PlayerID]
		out = append(out, model.Candidate{PlayerInfo: p, Online: online})
	}
	c.loop.candidates = out
	c.logger.Debug("player search results", "query", query, "results", len(out))
	c.publishCandidates()
}

func (c *Coordinator) stopSearch() {
	if c.loop.searchTimer != nil {
		c.loop.searchTimer.Stop()
		c.loop.searchTimer = nil
	}
	if c.loop.searchCancel != nil {
		c.loop.searchCancel()
		c.loop.searchCancel = nil
	}
}

func (c *Coordinator) onOnline(msg protocol.OnlineUpdate) {
	online := make(map[string]struct{}, len(msg.Online))
	for _, id := range msg.Online {
		online[id] = struct{}{}
	}
	c.loop.online = online
	c.loop.sessions = msg.Sessions
	c.bus.Publish(event.NewOnlineChangedEvent(len(online), msg.Sessions))

	changed := false
	for i := range c.loop.candidates {
		_, on := online[c.loop.candidates[i].PlayerID]
		if c.loop.candidates[i].Online != on {
			c.loop.candidates[i].Online = on
			changed = true
		}
	}
	if changed {
		c.publishCandidates()
	}
}

func (c *Coordinator) publishCandidates() {
	out := make([]model.Candidate, len(c.loop.candidates))
	copy(out, c.loop.candidates)
	c.bus.Publish(event.NewCandidatesChangedEvent(c.loop.searchQuery, out))
}
