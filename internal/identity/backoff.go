package identity

import (
	"time"

	"github.com/jpillora/backoff"
)

// BackoffDelay returns the wait after streak consecutive helper failures:
// min(limit, 2^(streak-1) seconds). A non-positive streak yields 0.
func BackoffDelay(streak int, limit time.Duration) time.Duration {
	if streak <= 0 {
		return 0
	}
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    limit,
		Factor: 2,
	}
	return b.ForAttempt(float64(streak - 1))
}
