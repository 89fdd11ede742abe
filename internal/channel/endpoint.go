package channel

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultSocketPath is used when the socket URL has no path.
const DefaultSocketPath = "/socket.io"

// Endpoint converts a configured socket URL into the websocket URL of its
// Engine.IO endpoint. http(s) schemes map to ws(s), and a bare "/" path
// becomes DefaultSocketPath.
func Endpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socket url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("socket url %q: missing host", raw)
	}

	path := u.Path
	if path == "" || path == "/" {
		path = DefaultSocketPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}
