// Package channel is the Game Coordinator connection: a Socket.IO v5
// client over an Engine.IO v4 websocket transport.
//
// The access token travels in the namespace connect packet, never as a
// per-message header. State moves Disconnected -> Connected when the
// namespace connect is acknowledged, and Connected -> HandshakeComplete
// when the backend sends CONNECTION_COMPLETE. Each transition is published
// once as channel.state_changed.
//
// Inbound events are decoded against the protocol topic table and
// republished on the bus as gc.<topic> events in arrival order. A payload
// that fails to decode is logged and dropped; unknown topics are dropped.
//
// Outbound commands are fire-and-forget. While disconnected they are
// silent no-ops; while connected they are buffered and written by a single
// writer goroutine.
package channel
