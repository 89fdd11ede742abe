// Package identity supervises the platform identity provider.
//
// A [Supervisor] polls on a fixed cadence. Each tick it checks whether the
// provider process runs and which user is active, and when a new user
// appears it runs the helper executable ([ExecHelper]) to obtain the user's
// profile and a signed session credential. Results are published on the
// event bus as identity.status_changed, identity.changed and
// identity.credential_changed; unchanged values are never republished.
//
// The helper is a separate short-lived process on purpose. The provider's
// native library is not stable inside a long-lived host, so each query runs
// in a fresh child with a hard timeout and a process-tree kill.
//
// Helper failures back off exponentially: after N consecutive failures the
// next query waits min(30s, 2^(N-1)s), measured from the end of the failed
// tick, so the regular cadence is not added on top.
package identity
