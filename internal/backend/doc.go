// Package backend is the matchmaking REST client: party snapshot, enabled
// modes, player search and lookup, avatars, and online counters.
//
// Calls that need a session take the access token per call and send it as
// a Bearer header; the client itself holds no credentials. Player lookups
// are cached in a bounded LRU keyed by player id.
package backend
