// Package transport manages the persistent bidirectional connection to the
// Drift message relay. Two backends are provided — a WebSocket relay
// (gobwas/ws) and a NATS relay — behind the single Relay interface. All
// operations are fire-and-forget or callback-registering; transport-level
// failures are logged, never surfaced as errors to callers.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/driftchat/client/internal/protocol"
)

// MessageEvent is an inbound chat message as seen by subscribers. The same
// shape is delivered on the shared message channel and on per-group channels.
type MessageEvent struct {
	ID         string
	FromUserID string
	ToUserID   string
	GroupID    string
	Body       string
	Kind       string // protocol.KindPrivate or protocol.KindGroup
	Timestamp  time.Time
}

// SendRequest is an outbound chat message. Exactly one of ToUserID (kind
// private) or GroupID (kind group) must be set.
type SendRequest struct {
	ID         string
	FromUserID string
	ToUserID   string
	GroupID    string
	Message    string
	Kind       string
	Timestamp  time.Time
}

// Relay is the transport contract. Send-type operations silently no-op (with
// a logged diagnostic) while disconnected; callers are expected to have
// applied any optimistic local update first. Disconnect tears down the
// connection and clears every registered listener.
type Relay interface {
	// Connect establishes the relay channel. It is idempotent and never
	// returns an error; connection failures are logged and drive the
	// backend's own bounded reconnection policy.
	Connect(ctx context.Context)

	// WaitConnected blocks until the connection is established or the
	// context is done.
	WaitConnected(ctx context.Context) error

	// Join registers the identity id on the established connection. A join
	// issued while disconnected is dropped with a log line, never queued.
	Join(userID string)

	SendMessage(req SendRequest)
	SendTyping(fromUserID, toUserID string)
	SendStopTyping(fromUserID, toUserID string)

	// Listener registration. Listeners are additive; each call returns a
	// disposer that removes only that listener.
	OnConnected(fn func()) (dispose func())
	OnMessage(fn func(MessageEvent)) (dispose func())
	OnUserOnline(fn func(userID string)) (dispose func())
	OnUserOffline(fn func(userID string)) (dispose func())
	OnTyping(fn func(fromUserID string)) (dispose func())
	OnStopTyping(fn func(fromUserID string)) (dispose func())

	// SubscribeGroup registers a listener on the per-group message channel.
	// UnsubscribeGroup removes every listener for that group.
	SubscribeGroup(groupID string, fn func(MessageEvent))
	UnsubscribeGroup(groupID string)

	Disconnect()
	IsConnected() bool
}

// waitConnected polls the connection status until it reports true or the
// context is done.
func waitConnected(ctx context.Context, isConnected func() bool) error {
	if isConnected() {
		return nil
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transport: waiting for connection: %w", ctx.Err())
		case <-ticker.C:
			if isConnected() {
				return nil
			}
		}
	}
}

// toMessageEvent converts a wire-level receive-message event into the
// subscriber-facing form. A zero ts falls back to the local arrival instant.
func toMessageEvent(m protocol.ReceiveMessageEvent) MessageEvent {
	ts := time.Now()
	if m.Ts > 0 {
		ts = time.UnixMilli(m.Ts)
	}
	return MessageEvent{
		ID:         m.ID,
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
		GroupID:    m.GroupID,
		Body:       m.Message,
		Kind:       m.Kind,
		Timestamp:  ts,
	}
}
