package session

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/model"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

// Queue button actions.
const (
	ActionPlay    = "PLAY"
	ActionCancel  = "CANCEL SEARCH"
	ActionConnect = "CONNECT"
)

// QueueDisplay is the derived queue button and status text.
type QueueDisplay struct {
	Action        string
	ModeCount     string
	Elapsed       string
	SearchingText string
}

// modePriority offsets pull featured modes to the front. Lower sorts first.
var modePriority = map[int]int{
	int(protocol.ModeUnranked):     -1000,
	int(protocol.ModeHighroom):     -1500,
	int(protocol.ModeBotsTwoVsTwo): -100,
	int(protocol.ModeTurbo):        -500,
}

func priority(id int) int {
	return id + modePriority[id]
}

// ReloadModes refetches the mode catalog.
func (c *Coordinator) ReloadModes() {
	c.post(c.loadModes)
}

func (c *Coordinator) loadModes() {
	c.spawn(func(ctx context.Context) {
		modes, err := c.backend.GetEnabledModes(ctx)
		c.post(func() { c.applyModes(modes, err) })
	})
}

func (c *Coordinator) applyModes(modes []model.QueueMode, err error) {
	if err != nil {
		if !errors.IsCanceled(err) {
			c.logger.Warn("failed to load matchmaking modes", "error", err)
		}
		return
	}

	next := make([]model.QueueMode, 0, len(modes))
	for _, m := range modes {
		if i := c.modeIndex(m.ID); i >= 0 {
			m.Selected = c.loop.modes[i].Selected
			m.InQueue = c.loop.modes[i].InQueue
		}
		m.Restriction = ""
		next = append(next, m)
	}
	slices.SortStableFunc(next, func(a, b model.QueueMode) int {
		return priority(a.ID) - priority(b.ID)
	})
	c.loop.modes = next
	c.applyRestrictions()
	c.logger.Info("matchmaking modes loaded", "count", len(next))
	c.publishQueue()
}

func (c *Coordinator) modeIndex(id int) int {
	return slices.IndexFunc(c.loop.modes, func(m model.QueueMode) bool { return m.ID == id })
}

// SelectMode marks a mode as selected or not for the next ToggleSearch.
func (c *Coordinator) SelectMode(id int, selected bool) {
	c.post(func() {
		i := c.modeIndex(id)
		if i < 0 || c.loop.modes[i].Selected == selected {
			return
		}
		c.loop.modes[i].Selected = selected
		c.publishQueue()
	})
}

// ToggleSearch leaves every queue when searching, otherwise enters the
// selected modes that no party member is restricted from. With nothing
// eligible selected it does nothing.
func (c *Coordinator) ToggleSearch() {
	c.post(c.toggleSearch)
}

func (c *Coordinator) toggleSearch() {
	if c.loop.searching {
		c.logger.Info("leaving all queues")
		c.commander.LeaveAllQueues()
		return
	}
	var modes []protocol.Mode
	for _, m := range c.loop.modes {
		if m.Selected && !m.Restricted() {
			modes = append(modes, protocol.Mode(m.ID))
		}
	}
	if len(modes) == 0 {
		c.logger.Debug("toggle search ignored: no eligible mode selected")
		return
	}
	c.logger.Info("entering queue", "modes", modes)
	c.commander.EnterQueue(modes)
}

func (c *Coordinator) onQueueCounter(msg protocol.QueueState) {
	i := c.modeIndex(int(msg.Mode))
	if i < 0 || c.loop.modes[i].InQueue == msg.InQueue {
		return
	}
	c.loop.modes[i].InQueue = msg.InQueue
	c.publishQueue()
}

func (c *Coordinator) onPlayerQueue(msg protocol.PlayerQueueState) {
	c.loop.searching = msg.InQueue
	c.loop.queued = nil
	if msg.InQueue {
		c.loop.queued = make([]int, 0, len(msg.Modes))
		for _, m := range msg.Modes {
			c.loop.queued = append(c.loop.queued, int(m))
		}
	}
	c.publishQueue()
}

func (c *Coordinator) queueDisplay() QueueDisplay {
	s := &c.loop
	d := QueueDisplay{Action: ActionPlay, SearchingText: "Not searching"}

	if s.searching {
		var names []string
		for _, m := range s.modes {
			if slices.Contains(s.queued, m.ID) {
				names = append(names, m.Name)
			}
		}
		d.SearchingText = "Searching"
		if len(names) > 0 {
			d.SearchingText = "Searching: " + strings.Join(names, ", ")
		}
	}

	switch {
	case s.serverURL != "":
		d.Action = ActionConnect
	case s.searching:
		d.Action = ActionCancel
		d.ModeCount = formatModeCount(len(s.queued))
		d.Elapsed = formatElapsed(c.queueElapsed())
	}
	return d
}

func (c *Coordinator) queueElapsed() time.Duration {
	if c.loop.enterQueueAt == nil {
		return 0
	}
	if d := c.clock.Now().Sub(*c.loop.enterQueueAt); d > 0 {
		return d
	}
	return 0
}

func (c *Coordinator) queueTick() {
	if !c.loop.searching || c.loop.serverURL != "" {
		return
	}
	elapsed := c.queueElapsed()
	c.bus.Publish(event.NewQueueTickEvent(elapsed, formatElapsed(elapsed)))
	c.storeSnapshot()
}

func formatModeCount(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "1 MODE"
	default:
		return strconv.Itoa(n) + " MODES"
	}
}

// formatElapsed renders m:ss with unbounded minutes.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func (c *Coordinator) publishQueue() {
	c.bus.Publish(event.NewQueueChangedEvent(
		slices.Clone(c.loop.modes),
		c.loop.searching,
		slices.Clone(c.loop.queued),
		cloneTime(c.loop.enterQueueAt),
	))
}
