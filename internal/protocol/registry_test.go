package protocol

import (
	"encoding/json"
	"testing"

	"github.com/d2c-launcher/coordinator/internal/errors"
)

func TestDecodeKnownTopics(t *testing.T) {
	tests := []struct {
		name  string
		topic Topic
		raw   string
		check func(t *testing.T, msg Message)
	}{
		{
			name:  "queue state",
			topic: TopicQueueState,
			raw:   `{"mode":1,"version":"Dota_684","inQueue":7}`,
			check: func(t *testing.T, msg Message) {
				qs := msg.(QueueState)
				if qs.Mode != ModeUnranked || qs.InQueue != 7 || qs.Version != "Dota_684" {
					t.Errorf("unexpected %+v", qs)
				}
			},
		},
		{
			name:  "player queue state",
			topic: TopicPlayerQueueState,
			raw:   `{"partyId":"p1","modes":[1,8],"inQueue":true}`,
			check: func(t *testing.T, msg Message) {
				pq := msg.(PlayerQueueState)
				if !pq.InQueue || len(pq.Modes) != 2 || pq.Modes[1] != ModeHighroom {
					t.Errorf("unexpected %+v", pq)
				}
			},
		},
		{
			name:  "room state",
			topic: TopicPlayerRoomState,
			raw:   `{"roomId":"r1","mode":1,"entries":[{"steamId":"42","state":3},{"steamId":"43","state":0}]}`,
			check: func(t *testing.T, msg Message) {
				rs := msg.(PlayerRoomState)
				if rs.Found || rs.Room == nil || rs.Room.RoomID != "r1" || len(rs.Room.Entries) != 2 {
					t.Errorf("unexpected %+v", rs)
				}
				if rs.Topic() != TopicPlayerRoomState {
					t.Errorf("Topic() = %s", rs.Topic())
				}
			},
		},
		{
			name:  "room found",
			topic: TopicPlayerRoomFound,
			raw:   `{"roomId":"r2","mode":0,"entries":[]}`,
			check: func(t *testing.T, msg Message) {
				rs := msg.(PlayerRoomState)
				if !rs.Found || rs.Topic() != TopicPlayerRoomFound {
					t.Errorf("unexpected %+v", rs)
				}
			},
		},
		{
			name:  "room cleared",
			topic: TopicPlayerRoomState,
			raw:   `null`,
			check: func(t *testing.T, msg Message) {
				if msg.(PlayerRoomState).Room != nil {
					t.Error("expected nil room")
				}
			},
		},
		{
			name:  "room cleared by absent payload",
			topic: TopicPlayerRoomState,
			raw:   ``,
			check: func(t *testing.T, msg Message) {
				if msg.(PlayerRoomState).Room != nil {
					t.Error("expected nil room")
				}
			},
		},
		{
			name:  "game ready",
			topic: TopicPlayerGameReady,
			raw:   `{"serverUrl":"1.2.3.4:27015"}`,
			check: func(t *testing.T, msg Message) {
				gs := msg.(PlayerGameState)
				if !gs.Ready || gs.Game == nil || gs.Game.ServerURL != "1.2.3.4:27015" {
					t.Errorf("unexpected %+v", gs)
				}
			},
		},
		{
			name:  "game cleared",
			topic: TopicPlayerGameState,
			raw:   `null`,
			check: func(t *testing.T, msg Message) {
				if msg.(PlayerGameState).Game != nil {
					t.Error("expected nil game")
				}
			},
		},
		{
			name:  "party changed keeps raw body",
			topic: TopicPlayerPartyState,
			raw:   `{"id":"party-9"}`,
			check: func(t *testing.T, msg Message) {
				if string(msg.(PartyChanged).Raw) != `{"id":"party-9"}` {
					t.Errorf("raw = %s", msg.(PartyChanged).Raw)
				}
			},
		},
		{
			name:  "invites batch",
			topic: TopicPartyInvitesState,
			raw:   `{"invitations":[{"partyId":"p","inviteId":"i1","inviter":{"steamId":"5","name":"Bob"}}]}`,
			check: func(t *testing.T, msg Message) {
				batch := msg.(PartyInvitesState)
				if len(batch.Invitations) != 1 || batch.Invitations[0].Inviter.Name != "Bob" {
					t.Errorf("unexpected %+v", batch)
				}
			},
		},
		{
			name:  "connection complete ignores body",
			topic: TopicConnectionComplete,
			raw:   `"anything"`,
			check: func(t *testing.T, msg Message) {
				if _, ok := msg.(ConnectionComplete); !ok {
					t.Errorf("unexpected %T", msg)
				}
			},
		},
		{
			name:  "notification stays raw",
			topic: TopicNotificationCreated,
			raw:   `{"notificationDto":{"id":"n1","kind":"ACHIEVEMENT"}}`,
			check: func(t *testing.T, msg Message) {
				var dto map[string]any
				if err := json.Unmarshal(msg.(NotificationCreated).Notification, &dto); err != nil || dto["id"] != "n1" {
					t.Errorf("unexpected %v %v", dto, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.topic, json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name  string
		topic Topic
		raw   string
		want  error
	}{
		{"unknown topic", Topic("MATCH_HISTORY"), `{}`, errors.ErrUnknownTopic},
		{"wrong field type", TopicQueueState, `{"mode":"one"}`, errors.ErrDecode},
		{"null strict payload", TopicOnlineUpdate, `null`, errors.ErrDecode},
		{"garbage room", TopicPlayerRoomState, `[1,2`, errors.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, json.RawMessage(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEveryTopicRegistered(t *testing.T) {
	want := []Topic{
		TopicConnectionComplete, TopicQueueState, TopicPlayerQueueState,
		TopicPlayerRoomState, TopicPlayerRoomFound, TopicPlayerPartyState,
		TopicPlayerGameState, TopicPlayerGameReady, TopicServerSearching,
		TopicOnlineUpdate, TopicPartyInvitesState, TopicPartyInviteReceived,
		TopicPartyInviteExpired, TopicNotificationCreated, TopicPleaseEnterQueue,
	}
	for _, topic := range want {
		if !Known(topic) {
			t.Errorf("topic %s not registered", topic)
		}
	}
	if len(Topics()) != len(want) {
		t.Errorf("Topics() has %d entries, want %d", len(Topics()), len(want))
	}
}

func TestModeLabel(t *testing.T) {
	if ModeTurbo.Label() != "Turbo" {
		t.Errorf("ModeTurbo.Label() = %q", ModeTurbo.Label())
	}
	if Mode(42).Label() != "Mode 42" {
		t.Errorf("unknown label = %q", Mode(42).Label())
	}
}
