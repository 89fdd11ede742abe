// Package session is the session state machine: queue membership and
// per-mode counters, the ready-check room, the party roster with its
// per-mode restrictions, pending party invites, and invite-candidate
// search.
//
// A Coordinator owns all of that state on a single goroutine. Bus
// handlers, timers and background lookups never touch it directly; they
// post tasks that the loop drains in order. Every change is republished on
// the event bus as a session.* event, and Snapshot returns a copy of the
// latest state for late readers.
//
// Inbound socket events arrive as gc.* MessageEvents from the channel
// package. Outbound intents go through a Commander, which the channel
// satisfies.
package session
