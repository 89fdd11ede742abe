package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

var (
	framePong       = []byte{eioPong}
	frameDisconnect = []byte{eioMessage, sioDisconnect}
)

// openInfo is the Engine.IO handshake sent by the server on connect.
type openInfo struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// liveness is how long the reader waits for any traffic before treating
// the transport as dead.
func (o openInfo) liveness() time.Duration {
	d := time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}

type packetKind int

const (
	kindUnknown packetKind = iota
	kindOpen
	kindClose
	kindPing
	kindPong
	kindConnect
	kindDisconnect
	kindEvent
	kindAck
	kindConnectError
)

// packet is one decoded frame.
type packet struct {
	kind    packetKind
	data    json.RawMessage // open info, connect payload or connect error
	topic   string
	payload json.RawMessage
}

// parsePacket decodes one websocket text frame.
func parsePacket(frame []byte) (packet, error) {
	if len(frame) == 0 {
		return packet{}, fmt.Errorf("empty frame")
	}
	switch frame[0] {
	case eioOpen:
		return packet{kind: kindOpen, data: json.RawMessage(frame[1:])}, nil
	case eioClose:
		return packet{kind: kindClose}, nil
	case eioPing:
		return packet{kind: kindPing}, nil
	case eioPong:
		return packet{kind: kindPong}, nil
	case eioMessage:
		return parseSocketPacket(frame[1:])
	default:
		return packet{}, fmt.Errorf("unknown engine packet %q", frame[0])
	}
}

func parseSocketPacket(body []byte) (packet, error) {
	if len(body) == 0 {
		return packet{}, fmt.Errorf("empty socket packet")
	}
	kind := body[0]
	rest := skipNamespaceAndAck(body[1:])

	switch kind {
	case sioConnect:
		return packet{kind: kindConnect, data: json.RawMessage(rest)}, nil
	case sioDisconnect:
		return packet{kind: kindDisconnect}, nil
	case sioConnectError:
		return packet{kind: kindConnectError, data: json.RawMessage(rest)}, nil
	case sioAck:
		return packet{kind: kindAck}, nil
	case sioEvent:
		var args []json.RawMessage
		if err := json.Unmarshal(rest, &args); err != nil {
			return packet{}, fmt.Errorf("event arguments: %w", err)
		}
		if len(args) == 0 {
			return packet{}, fmt.Errorf("event without name")
		}
		var topic string
		if err := json.Unmarshal(args[0], &topic); err != nil {
			return packet{}, fmt.Errorf("event name: %w", err)
		}
		p := packet{kind: kindEvent, topic: topic}
		if len(args) > 1 {
			p.payload = args[1]
		}
		return p, nil
	default:
		return packet{}, fmt.Errorf("unknown socket packet %q", kind)
	}
}

// skipNamespaceAndAck drops an optional "/nsp," prefix and ack id digits.
func skipNamespaceAndAck(b []byte) []byte {
	if len(b) > 0 && b[0] == '/' {
		if i := bytes.IndexByte(b, ','); i >= 0 {
			b = b[i+1:]
		} else {
			return nil
		}
	}
	for len(b) > 0 && b[0] >= '0' && b[0] <= '9' {
		b = b[1:]
	}
	return b
}

// encodeConnect builds the namespace connect packet carrying the token.
func encodeConnect(token string) ([]byte, error) {
	auth, err := json.Marshal(struct {
		Token string `json:"token"`
	}{token})
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioConnect}, auth...), nil
}

// encodeEvent builds an event packet; a nil payload sends the name alone.
func encodeEvent(name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

// connectError extracts the message from a connect error packet.
func connectError(data json.RawMessage) string {
	var v struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &v); err == nil && v.Message != "" {
		return v.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return string(data)
}
