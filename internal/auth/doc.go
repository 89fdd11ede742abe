// Package auth turns session credentials into backend access tokens.
//
// [HTTPExchanger] performs the exchange call. [Gate] subscribes to
// identity.credential_changed and applies single-flight discipline: each
// new credential cancels the exchange in flight for the previous one, and
// a result is applied only if no newer credential has arrived since. The
// Gate is the single writer of the access token; readers call
// [Gate.AccessToken].
//
// Tokens and credentials are never logged. [Inspect] derives a short
// fingerprint plus the subject and expiry for log lines.
package auth
