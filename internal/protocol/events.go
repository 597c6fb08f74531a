// Package protocol defines the relay event types and structures exchanged
// between the Drift client and the message relay. All events are serialized
// as JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Relay event types.
const (
	TypeJoin        = "join"
	TypeSendMessage = "send-message"
	TypeTyping      = "typing"
	TypeStopTyping  = "stop-typing"
)

// Relay -> Client event types.
const (
	TypeReceiveMessage = "receive-message"
	TypeUserOnline     = "user-online"
	TypeUserOffline    = "user-offline"
	TypeUserTyping     = "user-typing"
	TypeUserStopTyping = "user-stop-typing"
)

// Message kinds carried by send-message / receive-message events.
const (
	KindPrivate = "private"
	KindGroup   = "group"
)

const (
	groupEventPrefix = "group-"
	groupEventSuffix = "-new-message"
)

// GroupEventType returns the per-group inbound channel name for a group id,
// e.g. "group-g1-new-message".
func GroupEventType(groupID string) string {
	return groupEventPrefix + groupID + groupEventSuffix
}

// ParseGroupEventType extracts the group id from a per-group event name.
// It returns ("", false) when the name is not a group message event.
func ParseGroupEventType(eventType string) (string, bool) {
	if !strings.HasPrefix(eventType, groupEventPrefix) || !strings.HasSuffix(eventType, groupEventSuffix) {
		return "", false
	}
	id := eventType[len(groupEventPrefix) : len(eventType)-len(groupEventSuffix)]
	if id == "" {
		return "", false
	}
	return id, true
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Relay event structs
// ---------------------------------------------------------------------------

// JoinEvent registers the identity id on the relay connection. It must only
// be sent on an established connection; the relay drops joins sent earlier.
type JoinEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// SendMessageEvent carries an outbound chat message. Exactly one of ToUserID
// (kind private) or GroupID (kind group) is set.
type SendMessageEvent struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Ts         int64  `json:"ts"` // unix milliseconds
}

// TypingEvent signals that FromUserID started or is still typing to ToUserID.
type TypingEvent struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// StopTypingEvent signals that FromUserID stopped typing to ToUserID.
type StopTypingEvent struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ---------------------------------------------------------------------------
// Relay -> Client event structs
// ---------------------------------------------------------------------------

// ReceiveMessageEvent is an inbound chat message, private or group. The same
// shape is used on per-group channels.
type ReceiveMessageEvent struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Ts         int64  `json:"ts"` // unix milliseconds
}

// PresenceEvent announces that a user came online or went offline.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// UserTypingEvent relays a peer's typing indicator.
type UserTypingEvent struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerEvent parses raw relay bytes into a typed inbound event. It
// returns the event type string, the decoded struct, and any error
// encountered during parsing. Per-group channels decode to
// ReceiveMessageEvent. An error is returned for unknown or client-only
// event types.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeReceiveMessage:
		var m ReceiveMessageEvent
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUserOnline, TypeUserOffline:
		var m PresenceEvent
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUserTyping, TypeUserStopTyping:
		var m UserTypingEvent
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		if _, ok := ParseGroupEventType(env.Type); ok {
			var m ReceiveMessageEvent
			err = json.Unmarshal(env.Raw, &m)
			msg = m
			break
		}
		return env.Type, nil, fmt.Errorf("protocol: unknown server event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewClientEvent creates a JSON-encoded byte slice for a client event. The
// eventType is injected into the payload under the "type" key. The payload
// should be one of the client event structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewClientEvent(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = eventType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal client event: %w", err)
	}
	return out, nil
}
