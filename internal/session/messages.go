package session

import (
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/protocol"
)

func (c *Coordinator) onMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ConnectionComplete:
		c.logger.Debug("connection complete acknowledged")
	case protocol.QueueState:
		c.onQueueCounter(m)
	case protocol.PlayerQueueState:
		c.onPlayerQueue(m)
	case protocol.PlayerRoomState:
		c.onRoom(m)
	case protocol.PartyChanged:
		c.requestPartyRefresh()
	case protocol.PlayerGameState:
		c.onGame(m)
	case protocol.ServerSearching:
		c.onServerSearching(m)
	case protocol.OnlineUpdate:
		c.onOnline(m)
	case protocol.PartyInviteReceived:
		c.onInvite(m)
	case protocol.PartyInvitesState:
		c.onInvites(m)
	case protocol.PartyInviteExpired:
		c.onInviteExpired(m)
	case protocol.NotificationCreated:
		c.bus.Publish(event.NewNotificationEvent(m.Notification))
	case protocol.PleaseEnterQueue:
		c.bus.Publish(event.NewRequeueRequestedEvent(int(m.Mode), m.InQueue))
	default:
		c.logger.Debug("unhandled message", "topic", msg.Topic())
	}
}
