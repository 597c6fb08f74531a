package transport

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/driftchat/client/internal/metrics"
	"github.com/driftchat/client/internal/protocol"
)

// WSConfig holds WebSocket relay settings.
type WSConfig struct {
	URL           string        // ws://host:port/ws
	DialTimeout   time.Duration // per-attempt connection timeout
	ReconnectWait time.Duration // fixed delay between attempts
	MaxReconnects int           // attempts after a drop before giving up
}

// DefaultWSConfig returns sensible defaults matching the relay's published
// client settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		URL:           "ws://localhost:8080/ws",
		DialTimeout:   20 * time.Second,
		ReconnectWait: 1 * time.Second,
		MaxReconnects: 5,
	}
}

// WSRelay is the WebSocket relay backend. A single connection carries every
// event kind; the relay server fans group messages out on per-group event
// names over the same channel.
type WSRelay struct {
	relayEvents

	config WSConfig

	mu        sync.Mutex
	conn      net.Conn
	writeMu   sync.Mutex
	connected bool
	running   bool
	userID    string // joined identity, re-sent after a reconnect
	done      chan struct{}
}

// NewWSRelay returns a relay for the given config. No connection is made
// until Connect.
func NewWSRelay(config WSConfig) *WSRelay {
	return &WSRelay{
		relayEvents: newRelayEvents(),
		config:      config,
	}
}

// Connect establishes the connection in the background. It is a no-op when
// already connected or connecting. Dial failures are logged and retried with
// a fixed delay up to MaxReconnects attempts; exhausting the budget leaves
// the relay disconnected until the next explicit Connect.
func (r *WSRelay) Connect(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Printf("[relay] already connected")
		return
	}
	r.running = true
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.run(ctx, done)
}

// run owns the dial/read/retry loop for one Connect call. The attempt budget
// resets after every successful connection.
func (r *WSRelay) run(ctx context.Context, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	attempts := 0
	for {
		dialCtx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
		conn, _, _, err := ws.Dial(dialCtx, r.config.URL)
		cancel()
		if err != nil {
			attempts++
			log.Printf("[relay] connect attempt %d/%d failed: %v", attempts, r.config.MaxReconnects, err)
			if attempts >= r.config.MaxReconnects {
				log.Printf("[relay] giving up after %d attempts", attempts)
				return
			}
			metrics.ReconnectsTotal.Inc()
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-time.After(r.config.ReconnectWait):
			}
			continue
		}

		attempts = 0
		r.mu.Lock()
		r.conn = conn
		r.connected = true
		userID := r.userID
		r.mu.Unlock()
		metrics.RelayConnected.Set(1)
		log.Printf("[relay] connected to %s", r.config.URL)

		// Relay membership is connection-scoped: re-announce the identity
		// after a reconnect.
		if userID != "" {
			r.sendEvent(protocol.TypeJoin, protocol.JoinEvent{UserID: userID})
		}
		r.emitConnected()

		r.readLoop(conn, done)

		r.mu.Lock()
		r.connected = false
		r.conn = nil
		r.mu.Unlock()
		metrics.RelayConnected.Set(0)

		select {
		case <-done:
			return
		default:
		}
		log.Printf("[relay] connection lost, reconnecting")
	}
}

// readLoop reads frames until the connection fails or Disconnect is called,
// dispatching each parsed event to the registered listeners.
func (r *WSRelay) readLoop(conn net.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-done:
			default:
				log.Printf("[relay] read error: %v", err)
			}
			return
		}

		eventType, msg, err := protocol.ParseServerEvent(data)
		if err != nil {
			log.Printf("[relay] dropping unparseable event: %v", err)
			continue
		}
		r.dispatchServerEvent(eventType, msg)
	}
}

// WaitConnected blocks until the connection is established or ctx is done.
func (r *WSRelay) WaitConnected(ctx context.Context) error {
	return waitConnected(ctx, r.IsConnected)
}

// Join announces the identity id on the established connection. Joins issued
// while disconnected are dropped, never queued.
func (r *WSRelay) Join(userID string) {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		log.Printf("[relay] join dropped: not connected (user=%s)", userID)
		return
	}
	r.userID = userID
	r.mu.Unlock()

	r.sendEvent(protocol.TypeJoin, protocol.JoinEvent{UserID: userID})
}

// SendMessage dispatches an outbound chat message; a no-op when disconnected
// since the caller has already applied the optimistic local append.
func (r *WSRelay) SendMessage(req SendRequest) {
	r.sendEvent(protocol.TypeSendMessage, protocol.SendMessageEvent{
		ID:         req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		GroupID:    req.GroupID,
		Message:    req.Message,
		Kind:       req.Kind,
		Ts:         req.Timestamp.UnixMilli(),
	})
}

// SendTyping emits a best-effort typing indicator.
func (r *WSRelay) SendTyping(fromUserID, toUserID string) {
	r.sendEvent(protocol.TypeTyping, protocol.TypingEvent{FromUserID: fromUserID, ToUserID: toUserID})
}

// SendStopTyping emits a best-effort stop-typing indicator.
func (r *WSRelay) SendStopTyping(fromUserID, toUserID string) {
	r.sendEvent(protocol.TypeStopTyping, protocol.StopTypingEvent{FromUserID: fromUserID, ToUserID: toUserID})
}

// UnsubscribeGroup removes every listener on the group's message channel.
func (r *WSRelay) UnsubscribeGroup(groupID string) {
	r.reg.clearKind(evGroup(groupID))
}

// Disconnect tears down the connection and clears all registered listeners.
// This is a deliberate full reset; a subsequent Connect starts from a blank
// listener set.
func (r *WSRelay) Disconnect() {
	r.mu.Lock()
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	conn := r.conn
	r.conn = nil
	r.connected = false
	r.userID = ""
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	r.reg.clear()
	metrics.RelayConnected.Set(0)
	log.Printf("[relay] disconnected")
}

// IsConnected reports whether the connection is currently established.
func (r *WSRelay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// sendEvent serializes and writes one client event, serializing writes so
// concurrent callers do not interleave frame bytes.
func (r *WSRelay) sendEvent(eventType string, payload interface{}) {
	r.mu.Lock()
	conn := r.conn
	connected := r.connected
	r.mu.Unlock()

	if !connected || conn == nil {
		log.Printf("[relay] %s dropped: not connected", eventType)
		return
	}

	data, err := protocol.NewClientEvent(eventType, payload)
	if err != nil {
		log.Printf("[relay] failed to build %s event: %v", eventType, err)
		return
	}

	r.writeMu.Lock()
	err = wsutil.WriteClientMessage(conn, ws.OpText, data)
	r.writeMu.Unlock()
	if err != nil {
		log.Printf("[relay] failed to send %s event: %v", eventType, err)
	}
}
