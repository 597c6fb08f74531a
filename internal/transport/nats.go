package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/driftchat/client/internal/metrics"
	"github.com/driftchat/client/internal/protocol"
)

// NATS subject patterns used by the Drift relay mesh.
const (
	SubjectPresence = "relay.presence"
	SubjectUser     = "relay.user."  // + <user_id>
	SubjectGroup    = "relay.group." // + <group_id>
)

// NATSConfig holds NATS relay settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "drift",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: 5,
	}
}

// NATSRelay is the NATS relay backend. Peers address each other directly:
// private messages and typing indicators are published to the recipient's
// user subject, group messages to the group subject, and presence
// announcements to the shared presence subject.
type NATSRelay struct {
	relayEvents

	config NATSConfig

	mu     sync.Mutex
	conn   *nats.Conn
	subs   map[string]*nats.Subscription
	userID string
}

// NewNATSRelay returns a relay for the given config. No connection is made
// until Connect.
func NewNATSRelay(config NATSConfig) *NATSRelay {
	return &NATSRelay{
		relayEvents: newRelayEvents(),
		config:      config,
	}
}

// Connect establishes the NATS connection. It is a no-op when already
// connected; failures are logged and the relay stays disconnected. Once
// established, reconnection is handled by the NATS client within the
// configured attempt budget.
func (r *NATSRelay) Connect(_ context.Context) {
	r.mu.Lock()
	if r.conn != nil && !r.conn.IsClosed() {
		r.mu.Unlock()
		log.Printf("[relay] already connected")
		return
	}
	r.mu.Unlock()

	opts := []nats.Option{
		nats.Name(r.config.Name),
		nats.ReconnectWait(r.config.ReconnectWait),
		nats.MaxReconnects(r.config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			metrics.RelayConnected.Set(0)
			if err != nil {
				log.Printf("[relay] disconnected: %v", err)
			} else {
				log.Printf("[relay] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.RelayConnected.Set(1)
			metrics.ReconnectsTotal.Inc()
			log.Printf("[relay] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			metrics.RelayConnected.Set(0)
			log.Printf("[relay] connection closed")
		}),
	}

	nc, err := nats.Connect(r.config.URL, opts...)
	if err != nil {
		log.Printf("[relay] connect failed: %v", err)
		return
	}

	r.mu.Lock()
	r.conn = nc
	r.subs = make(map[string]*nats.Subscription)
	r.mu.Unlock()
	metrics.RelayConnected.Set(1)
	log.Printf("[relay] connected to %s", nc.ConnectedUrl())

	r.emitConnected()
}

// WaitConnected blocks until the connection is established or ctx is done.
func (r *NATSRelay) WaitConnected(ctx context.Context) error {
	return waitConnected(ctx, r.IsConnected)
}

// Join subscribes the identity's inbox and the shared presence subject, then
// announces the user as online. Joins issued while disconnected are dropped,
// never queued.
func (r *NATSRelay) Join(userID string) {
	if !r.IsConnected() {
		log.Printf("[relay] join dropped: not connected (user=%s)", userID)
		return
	}

	r.mu.Lock()
	r.userID = userID
	r.mu.Unlock()

	r.subscribeSubject(SubjectUser + userID)
	r.subscribeSubject(SubjectPresence)
	r.publish(SubjectPresence, protocol.TypeUserOnline, protocol.PresenceEvent{UserID: userID})
}

// SendMessage publishes an outbound chat message to the recipient's inbox or
// the group subject; a no-op when disconnected since the caller has already
// applied the optimistic local append.
func (r *NATSRelay) SendMessage(req SendRequest) {
	event := protocol.ReceiveMessageEvent{
		ID:         req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		GroupID:    req.GroupID,
		Message:    req.Message,
		Kind:       req.Kind,
		Ts:         req.Timestamp.UnixMilli(),
	}
	if req.Kind == protocol.KindGroup {
		r.publish(SubjectGroup+req.GroupID, protocol.GroupEventType(req.GroupID), event)
		return
	}
	r.publish(SubjectUser+req.ToUserID, protocol.TypeReceiveMessage, event)
}

// SendTyping publishes a best-effort typing indicator to the peer's inbox.
func (r *NATSRelay) SendTyping(fromUserID, toUserID string) {
	r.publish(SubjectUser+toUserID, protocol.TypeUserTyping, protocol.UserTypingEvent{FromUserID: fromUserID})
}

// SendStopTyping publishes a best-effort stop-typing indicator.
func (r *NATSRelay) SendStopTyping(fromUserID, toUserID string) {
	r.publish(SubjectUser+toUserID, protocol.TypeUserStopTyping, protocol.UserTypingEvent{FromUserID: fromUserID})
}

// SubscribeGroup registers the listener and ensures the group subject is
// subscribed exactly once, so repeated subscriptions never duplicate
// delivery beyond what was explicitly registered.
func (r *NATSRelay) SubscribeGroup(groupID string, fn func(MessageEvent)) {
	r.relayEvents.SubscribeGroup(groupID, fn)
	r.subscribeSubject(SubjectGroup + groupID)
}

// UnsubscribeGroup drops the group subject subscription and removes every
// listener on the group's channel.
func (r *NATSRelay) UnsubscribeGroup(groupID string) {
	subject := SubjectGroup + groupID

	r.mu.Lock()
	sub, ok := r.subs[subject]
	if ok {
		delete(r.subs, subject)
	}
	r.mu.Unlock()

	if ok {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[relay] unsubscribe %s: %v", subject, err)
		}
	}
	r.reg.clearKind(evGroup(groupID))
}

// Disconnect announces the user as offline, drains all subscriptions, closes
// the connection, and clears every registered listener.
func (r *NATSRelay) Disconnect() {
	r.mu.Lock()
	conn := r.conn
	subs := r.subs
	userID := r.userID
	r.conn = nil
	r.subs = nil
	r.userID = ""
	r.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		if userID != "" {
			r.publishOn(conn, SubjectPresence, protocol.TypeUserOffline, protocol.PresenceEvent{UserID: userID})
		}
		for subject, sub := range subs {
			if err := sub.Drain(); err != nil {
				log.Printf("[relay] drain %s: %v", subject, err)
			}
		}
		if err := conn.Drain(); err != nil {
			log.Printf("[relay] connection drain: %v", err)
		}
	}

	r.reg.clear()
	metrics.RelayConnected.Set(0)
	log.Printf("[relay] disconnected")
}

// IsConnected reports whether the connection is currently established.
func (r *NATSRelay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && r.conn.IsConnected()
}

// subscribeSubject subscribes the subject once and routes its envelopes into
// the listener registry.
func (r *NATSRelay) subscribeSubject(subject string) {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		log.Printf("[relay] subscribe %s dropped: not connected", subject)
		return
	}
	if _, ok := r.subs[subject]; ok {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		eventType, parsed, err := protocol.ParseServerEvent(msg.Data)
		if err != nil {
			log.Printf("[relay] dropping unparseable event on %s: %v", subject, err)
			return
		}
		r.dispatchServerEvent(eventType, parsed)
	})
	if err != nil {
		log.Printf("[relay] subscribe %s: %v", subject, err)
		return
	}

	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[string]*nats.Subscription)
	}
	r.subs[subject] = sub
	r.mu.Unlock()
}

// publish builds a typed envelope and publishes it; a no-op when
// disconnected.
func (r *NATSRelay) publish(subject, eventType string, payload interface{}) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		log.Printf("[relay] %s dropped: not connected", eventType)
		return
	}
	r.publishOn(conn, subject, eventType, payload)
}

func (r *NATSRelay) publishOn(conn *nats.Conn, subject, eventType string, payload interface{}) {
	data, err := protocol.NewClientEvent(eventType, payload)
	if err != nil {
		log.Printf("[relay] failed to build %s event: %v", eventType, err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		log.Printf("[relay] publish %s: %v", subject, err)
	}
}
