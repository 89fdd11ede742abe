package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what may be logged about an access token.
type TokenInfo struct {
	Fingerprint string
	Subject     string
	ExpiresAt   time.Time
}

// LogArgs returns the info as slog key/value pairs.
func (i TokenInfo) LogArgs() []any {
	args := []any{"token_fp", i.Fingerprint}
	if i.Subject != "" {
		args = append(args, "subject", i.Subject)
	}
	if !i.ExpiresAt.IsZero() {
		args = append(args, "expires_at", i.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return args
}

// Fingerprint returns the first 12 hex chars of the token's SHA-256, or ""
// for an empty token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// Inspect reads the token's claims without verifying the signature. The
// coordinator never trusts these claims; they only enrich log lines.
// Opaque tokens yield a fingerprint only.
func Inspect(token string) TokenInfo {
	info := TokenInfo{Fingerprint: Fingerprint(token)}
	if token == "" {
		return info
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return info
	}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info
}
