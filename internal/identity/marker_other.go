//go:build !windows

package identity

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/d2c-launcher/coordinator/internal/logging"
)

var activeUserPattern = regexp.MustCompile(`"ActiveUser"\s+"(\d+)"`)

type vdfReader struct {
	path   string
	logger *logging.Logger
}

// NewActiveUserReader reads ActiveUser from the provider's registry.vdf
// in the user's home directory.
func NewActiveUserReader(logger *logging.Logger) ActiveUserReader {
	return &vdfReader{path: defaultRegistryPath(), logger: logger}
}

// newVDFReader reads from an explicit registry.vdf path.
func newVDFReader(path string, logger *logging.Logger) *vdfReader {
	return &vdfReader{path: path, logger: logger}
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Steam", "registry.vdf")
	}
	return filepath.Join(home, ".steam", "registry.vdf")
}

func (r *vdfReader) ActiveUser() uint64 {
	if r.path == "" {
		return 0
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Debug("active user marker unreadable", "path", r.path, "error", err)
		}
		return 0
	}
	m := activeUserPattern.FindSubmatch(data)
	if m == nil {
		return 0
	}
	return coerceActiveUser(string(m[1]))
}
