package channel

import (
	"testing"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		wantKind    packetKind
		wantTopic   string
		wantPayload string
		wantErr     bool
	}{
		{"open", `0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`, kindOpen, "", "", false},
		{"close", "1", kindClose, "", "", false},
		{"ping", "2", kindPing, "", "", false},
		{"pong", "3", kindPong, "", "", false},
		{"connect ack", `40{"sid":"x"}`, kindConnect, "", "", false},
		{"disconnect", "41", kindDisconnect, "", "", false},
		{"connect error", `44{"message":"nope"}`, kindConnectError, "", "", false},
		{"event", `42["QUEUE_STATE",{"mode":1}]`, kindEvent, "QUEUE_STATE", `{"mode":1}`, false},
		{"event without payload", `42["GO_QUEUE"]`, kindEvent, "GO_QUEUE", "", false},
		{"event with ack id", `4217["PING_ME",1]`, kindEvent, "PING_ME", "1", false},
		{"event in namespace", `42/admin,["X",{}]`, kindEvent, "X", "{}", false},
		{"event null payload", `42["PLAYER_ROOM_STATE",null]`, kindEvent, "PLAYER_ROOM_STATE", "null", false},
		{"ack", `431[]`, kindAck, "", "", false},
		{"empty", "", kindUnknown, "", "", true},
		{"unknown engine type", "9", kindUnknown, "", "", true},
		{"event bad json", `42[oops`, kindUnknown, "", "", true},
		{"event empty array", `42[]`, kindUnknown, "", "", true},
		{"event numeric name", `42[5,{}]`, kindUnknown, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePacket([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePacket(%q) error = %v, wantErr %v", tt.frame, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", p.kind, tt.wantKind)
			}
			if p.topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", p.topic, tt.wantTopic)
			}
			if string(p.payload) != tt.wantPayload {
				t.Errorf("payload = %q, want %q", p.payload, tt.wantPayload)
			}
		})
	}
}

func TestConnectError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"message":"invalid token"}`, "invalid token"},
		{`"plain"`, "plain"},
		{`{}`, `{}`},
	}
	for _, tt := range tests {
		if got := connectError([]byte(tt.in)); got != tt.want {
			t.Errorf("connectError(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenInfoLiveness(t *testing.T) {
	if got := (openInfo{PingInterval: 25000, PingTimeout: 20000}).liveness().Seconds(); got != 45 {
		t.Errorf("liveness = %vs, want 45s", got)
	}
	if got := (openInfo{}).liveness().Seconds(); got != 45 {
		t.Errorf("default liveness = %vs, want 45s", got)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"wss://api.dotaclassic.ru", "wss://api.dotaclassic.ru/socket.io/?EIO=4&transport=websocket", false},
		{"wss://api.dotaclassic.ru/", "wss://api.dotaclassic.ru/socket.io/?EIO=4&transport=websocket", false},
		{"https://example.com/gc", "wss://example.com/gc/?EIO=4&transport=websocket", false},
		{"http://127.0.0.1:8080/", "ws://127.0.0.1:8080/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://example.com", "", true},
		{"wss://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Endpoint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
