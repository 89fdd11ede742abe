//go:build windows

package identity

import (
	"golang.org/x/sys/windows/registry"

	"github.com/d2c-launcher/coordinator/internal/errors"
	"github.com/d2c-launcher/coordinator/internal/logging"
)

const (
	activeProcessKey = `Software\Valve\Steam\ActiveProcess`
	activeUserValue  = "ActiveUser"
)

type registryReader struct {
	logger *logging.Logger
}

// NewActiveUserReader reads ActiveUser from the provider's registry key
// under HKEY_CURRENT_USER.
func NewActiveUserReader(logger *logging.Logger) ActiveUserReader {
	return &registryReader{logger: logger}
}

func (r *registryReader) ActiveUser() uint64 {
	k, err := registry.OpenKey(registry.CURRENT_USER, activeProcessKey, registry.QUERY_VALUE)
	if err != nil {
		return 0
	}
	defer func() { _ = k.Close() }()

	n, _, err := k.GetIntegerValue(activeUserValue)
	if err == nil {
		return coerceActiveUser(n)
	}
	if errors.Is(err, registry.ErrUnexpectedType) {
		s, _, serr := k.GetStringValue(activeUserValue)
		if serr == nil {
			return coerceActiveUser(s)
		}
	}
	r.logger.Debug("active user marker unreadable", "error", err)
	return 0
}
