package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/d2c-launcher/coordinator/internal/errors"
)

type decoder func(raw json.RawMessage) (Message, error)

var registry = map[Topic]decoder{
	TopicConnectionComplete: func(json.RawMessage) (Message, error) {
		return ConnectionComplete{}, nil
	},
	TopicQueueState:       strict[QueueState],
	TopicPlayerQueueState: strict[PlayerQueueState],
	TopicPlayerRoomState: func(raw json.RawMessage) (Message, error) {
		room, err := nullable[Room](raw)
		return PlayerRoomState{Room: room}, err
	},
	TopicPlayerRoomFound: func(raw json.RawMessage) (Message, error) {
		room, err := nullable[Room](raw)
		return PlayerRoomState{Found: true, Room: room}, err
	},
	TopicPlayerPartyState: func(raw json.RawMessage) (Message, error) {
		return PartyChanged{Raw: append(json.RawMessage(nil), raw...)}, nil
	},
	TopicPlayerGameState: func(raw json.RawMessage) (Message, error) {
		game, err := nullable[Game](raw)
		return PlayerGameState{Game: game}, err
	},
	TopicPlayerGameReady: func(raw json.RawMessage) (Message, error) {
		game, err := nullable[Game](raw)
		return PlayerGameState{Ready: true, Game: game}, err
	},
	TopicServerSearching:     strict[ServerSearching],
	TopicOnlineUpdate:        strict[OnlineUpdate],
	TopicPartyInvitesState:   strict[PartyInvitesState],
	TopicPartyInviteReceived: strict[PartyInviteReceived],
	TopicPartyInviteExpired:  strict[PartyInviteExpired],
	TopicNotificationCreated: strict[NotificationCreated],
	TopicPleaseEnterQueue:    strict[PleaseEnterQueue],
}

// Known reports whether topic has a registered schema.
func Known(topic Topic) bool {
	_, ok := registry[topic]
	return ok
}

// Topics returns every registered topic.
func Topics() []Topic {
	out := make([]Topic, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// Decode parses raw as the payload of topic. It returns an error wrapping
// errors.ErrUnknownTopic for unregistered topics and errors.ErrDecode when
// the payload does not fit the topic's schema.
func Decode(topic Topic, raw json.RawMessage) (Message, error) {
	dec, ok := registry[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownTopic, topic)
	}
	msg, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrDecode, topic, err)
	}
	return msg, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// strict requires a JSON object.
func strict[T Message](raw json.RawMessage) (Message, error) {
	var v T
	if isNull(raw) {
		return nil, errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// nullable accepts null or an absent payload as nil.
func nullable[T any](raw json.RawMessage) (*T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
