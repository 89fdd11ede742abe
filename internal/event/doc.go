// Package event provides the pub-sub bus that connects the coordinator's
// components, plus the typed events they publish.
//
// Each concern owns its event types exclusively:
//
//   - identity.*: the identity supervisor (status, identity, credential)
//   - auth.*: the credential exchange gate
//   - channel.*: the Game Coordinator channel's connection state
//   - gc.*: decoded inbound channel messages, one type per topic
//   - session.*: derived queue, room, party, invite and game state
//
// Handlers run synchronously on the publisher's goroutine and are protected
// against panics. Handlers that do real work should hand it off to their
// own goroutine or task queue.
//
//	bus := event.NewBus(event.WithBusLogger(logger))
//	bus.Subscribe(event.TypeConnectionChanged, func(e event.Event) {
//	    changed := e.(event.ConnectionChangedEvent)
//	    logger.Info("channel state", "state", changed.Current)
//	})
package event
