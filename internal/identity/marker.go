package identity

import (
	"strconv"
	"strings"
)

// coerceActiveUser turns a raw marker value into a user id. Integers must
// be positive and strings must parse as one; everything else is 0.
func coerceActiveUser(v any) uint64 {
	switch n := v.(type) {
	case int:
		return positive(int64(n))
	case int32:
		return positive(int64(n))
	case int64:
		return positive(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case string:
		s := strings.TrimSpace(n)
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		return 0
	default:
		return 0
	}
}

func positive(n int64) uint64 {
	if n <= 0 {
		return 0
	}
	return uint64(n)
}

// ActiveUserFunc adapts a function to ActiveUserReader.
type ActiveUserFunc func() uint64

// ActiveUser implements ActiveUserReader.
func (f ActiveUserFunc) ActiveUser() uint64 { return f() }
