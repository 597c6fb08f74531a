package transport

import (
	"sync"

	"github.com/driftchat/client/internal/protocol"
)

// Registry event kinds. Per-group channels use the "group:" prefix so they
// can be cleared independently of the shared message channel.
const (
	evConnected  = "connected"
	evMessage    = "message"
	evOnline     = "online"
	evOffline    = "offline"
	evTyping     = "typing"
	evStopTyping = "stop-typing"
)

func evGroup(groupID string) string {
	return "group:" + groupID
}

type listener struct {
	id int
	fn func(interface{})
}

// registry is the explicit subscription registry shared by both relay
// backends: an ordered listener list per event kind. Subscribing returns a
// disposer; clear empties everything, which is how Disconnect implements its
// full-reset contract.
type registry struct {
	mu     sync.Mutex
	nextID int
	kinds  map[string][]listener
}

func newRegistry() *registry {
	return &registry{kinds: make(map[string][]listener)}
}

// add appends fn to the kind's listener list and returns a disposer that
// removes exactly that listener. Disposing twice is harmless.
func (r *registry) add(kind string, fn func(interface{})) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.kinds[kind] = append(r.kinds[kind], listener{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		ls := r.kinds[kind]
		for i, l := range ls {
			if l.id == id {
				r.kinds[kind] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// dispatch invokes every listener registered for the kind, in registration
// order. Listeners run outside the lock so they may subscribe or unsubscribe.
func (r *registry) dispatch(kind string, payload interface{}) {
	r.mu.Lock()
	ls := make([]listener, len(r.kinds[kind]))
	copy(ls, r.kinds[kind])
	r.mu.Unlock()

	for _, l := range ls {
		l.fn(payload)
	}
}

// clearKind removes every listener for one kind.
func (r *registry) clearKind(kind string) {
	r.mu.Lock()
	delete(r.kinds, kind)
	r.mu.Unlock()
}

// clear removes every listener of every kind.
func (r *registry) clear() {
	r.mu.Lock()
	r.kinds = make(map[string][]listener)
	r.mu.Unlock()
}

// relayEvents provides the typed listener API over the registry and the
// inbound dispatch shared by both backends.
type relayEvents struct {
	reg *registry
}

func newRelayEvents() relayEvents {
	return relayEvents{reg: newRegistry()}
}

// OnConnected registers a handler fired each time the connection is
// (re)established.
func (e relayEvents) OnConnected(fn func()) func() {
	return e.reg.add(evConnected, func(interface{}) { fn() })
}

// OnMessage registers a handler for inbound private and group messages on
// the shared channel.
func (e relayEvents) OnMessage(fn func(MessageEvent)) func() {
	return e.reg.add(evMessage, func(v interface{}) { fn(v.(MessageEvent)) })
}

// OnUserOnline registers a handler for presence-up events.
func (e relayEvents) OnUserOnline(fn func(string)) func() {
	return e.reg.add(evOnline, func(v interface{}) { fn(v.(string)) })
}

// OnUserOffline registers a handler for presence-down events.
func (e relayEvents) OnUserOffline(fn func(string)) func() {
	return e.reg.add(evOffline, func(v interface{}) { fn(v.(string)) })
}

// OnTyping registers a handler for typing-start events.
func (e relayEvents) OnTyping(fn func(string)) func() {
	return e.reg.add(evTyping, func(v interface{}) { fn(v.(string)) })
}

// OnStopTyping registers a handler for typing-stop events.
func (e relayEvents) OnStopTyping(fn func(string)) func() {
	return e.reg.add(evStopTyping, func(v interface{}) { fn(v.(string)) })
}

// SubscribeGroup registers a handler on the group's message channel.
func (e relayEvents) SubscribeGroup(groupID string, fn func(MessageEvent)) {
	e.reg.add(evGroup(groupID), func(v interface{}) { fn(v.(MessageEvent)) })
}

// dispatchServerEvent routes a parsed inbound event to the matching listener
// list. msg is a concrete struct produced by protocol.ParseServerEvent.
func (e relayEvents) dispatchServerEvent(eventType string, msg interface{}) {
	switch m := msg.(type) {
	case protocol.ReceiveMessageEvent:
		if groupID, ok := protocol.ParseGroupEventType(eventType); ok {
			e.reg.dispatch(evGroup(groupID), toMessageEvent(m))
			return
		}
		e.reg.dispatch(evMessage, toMessageEvent(m))
	case protocol.PresenceEvent:
		if eventType == protocol.TypeUserOnline {
			e.reg.dispatch(evOnline, m.UserID)
		} else {
			e.reg.dispatch(evOffline, m.UserID)
		}
	case protocol.UserTypingEvent:
		if eventType == protocol.TypeUserTyping {
			e.reg.dispatch(evTyping, m.FromUserID)
		} else {
			e.reg.dispatch(evStopTyping, m.FromUserID)
		}
	}
}

func (e relayEvents) emitConnected() {
	e.reg.dispatch(evConnected, nil)
}
