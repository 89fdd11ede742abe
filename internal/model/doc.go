// Package model holds the value types shared by the coordinator's
// components: identity, connection state, queue modes, rooms, party
// rosters and invites. It has no dependencies on other internal packages.
package model
