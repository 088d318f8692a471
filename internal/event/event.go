// ABOUTME: Core inbound event type flowing from acquisition to dispatch
// ABOUTME: Carries a sequence id for acknowledgement and a conversation key for state routing

package event

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Key identifies the conversation an event belongs to. Events sharing a key
// are serialized by the dispatcher; events with distinct keys may be
// processed concurrently. UserID is optional and zero when the platform
// only scopes conversations by chat.
type Key struct {
	ChatID int64
	UserID int64
}

// String renders the key in "chat" or "chat:user" form, suitable for map
// keys and log attributes.
func (k Key) String() string {
	s := strconv.FormatInt(k.ChatID, 10)
	if k.UserID != 0 {
		s += ":" + strconv.FormatInt(k.UserID, 10)
	}
	return s
}

// ParseKey parses a key previously rendered by String. Returns false if s is
// not a valid key.
func ParseKey(s string) (Key, bool) {
	chatPart, userPart, hasUser := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return Key{}, false
	}
	k := Key{ChatID: chatID}
	if hasUser {
		userID, err := strconv.ParseInt(userPart, 10, 64)
		if err != nil {
			return Key{}, false
		}
		k.UserID = userID
	}
	return k, true
}

// Event is one inbound item from the platform. It is immutable once
// acquired: the acquisition layer builds it and everything downstream only
// reads it.
type Event struct {
	// Seq is the platform-assigned sequence id. It is strictly increasing
	// across batches and drives acknowledgement cursor advancement.
	Seq int64

	// Key is the conversation identity used for state routing.
	Key Key

	// Payload is the opaque platform record. The core never interprets it
	// beyond the Text convenience accessor.
	Payload json.RawMessage

	// ReceivedAt is when the acquisition layer accepted the event.
	ReceivedAt time.Time
}

// payloadEnvelope mirrors the subset of the platform record that carries
// message text, in both bare and nested forms.
type payloadEnvelope struct {
	Text    string `json:"text"`
	Message *struct {
		Text string `json:"text"`
	} `json:"message"`
}

// Text extracts message text from the payload for predicate convenience.
// Returns "" when the payload has no text field or cannot be decoded.
func (e *Event) Text() string {
	if len(e.Payload) == 0 {
		return ""
	}
	var env payloadEnvelope
	if err := json.Unmarshal(e.Payload, &env); err != nil {
		return ""
	}
	if env.Text != "" {
		return env.Text
	}
	if env.Message != nil {
		return env.Message.Text
	}
	return ""
}
